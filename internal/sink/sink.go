// Package sink implements spec.md §4.J, the Output Sink: a thin
// contract-only collaborator that formats an ordered PathData stream as
// columnar, null-delimited, tab-delimited, JSON, CSV, or raw. Streaming:
// no buffering beyond one record except JSON, which wraps the stream in a
// single array.
//
// Grounded on the teacher's vvfs/filesystem/services/organization_service.go
// report-formatting helpers, generalized from "organization run summary"
// to "version record stream", kept minimal per spec.md §1 (ANSI
// colorization and pager integration are explicitly out of scope).
package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/httm-go/httm/internal/pathdata"
)

// Format selects the Output Sink's record encoding.
type Format int

const (
	Columnar Format = iota
	NullDelimited
	TabDelimited
	JSON
	CSV
	RawPath
)

func ParseFormat(s string) Format {
	switch s {
	case "null":
		return NullDelimited
	case "tab":
		return TabDelimited
	case "json":
		return JSON
	case "csv":
		return CSV
	case "raw":
		return RawPath
	default:
		return Columnar
	}
}

// record is the JSON schema of spec.md §6: stable surface, keys
// date/size/path/live.
type record struct {
	Date string `json:"date"`
	Size int64  `json:"size"`
	Path string `json:"path"`
	Live bool   `json:"live"`
}

// Sink streams PathData to w in the configured Format.
type Sink struct {
	w      io.Writer
	format Format

	jsonStarted bool
	csvWriter   *csv.Writer
}

// New constructs a Sink writing to w.
func New(w io.Writer, format Format) *Sink {
	return &Sink{w: w, format: format}
}

// Open emits any format-specific preamble (JSON's opening bracket, CSV's
// header row). Must be called before the first Write.
func (s *Sink) Open() error {
	switch s.format {
	case JSON:
		_, err := fmt.Fprint(s.w, "[")
		return err
	case CSV:
		s.csvWriter = csv.NewWriter(s.w)
		return s.csvWriter.Write([]string{"date", "size", "path", "live"})
	}
	return nil
}

// Close emits any format-specific trailer (JSON's closing bracket) and
// flushes buffered writers.
func (s *Sink) Close() error {
	switch s.format {
	case JSON:
		_, err := fmt.Fprint(s.w, "]\n")
		return err
	case CSV:
		s.csvWriter.Flush()
		return s.csvWriter.Error()
	}
	return nil
}

// WriteSeparator emits the separator line that delimits the snapshot
// block from the live-file block in the default (Columnar) format
// (spec.md §4.J).
func (s *Sink) WriteSeparator() error {
	if s.format != Columnar {
		return nil
	}
	_, err := fmt.Fprintln(s.w, "----")
	return err
}

// Write emits one PathData record. Buffers no more than the current
// record (CSV/JSON writers hold only their own small internal buffer, not
// the stream).
func (s *Sink) Write(p pathdata.PathData) error {
	switch s.format {
	case JSON:
		return s.writeJSON(p)
	case CSV:
		return s.csvWriter.Write([]string{
			p.ModifyTime.Format(time.RFC3339), fmt.Sprintf("%d", p.Size), p.SnapshotPath, fmt.Sprintf("%t", p.IsLive),
		})
	case NullDelimited:
		_, err := fmt.Fprintf(s.w, "%s\x00", p.SnapshotPath)
		return err
	case TabDelimited:
		_, err := fmt.Fprintf(s.w, "%s\t%d\t%s\t%t\n", p.ModifyTime.Format(time.RFC3339), p.Size, p.SnapshotPath, p.IsLive)
		return err
	case RawPath:
		_, err := fmt.Fprintln(s.w, p.SnapshotPath)
		return err
	default: // Columnar
		_, err := fmt.Fprintf(s.w, "%s %10d %s\n", p.ModifyTime.Format("2006-01-02 15:04:05"), p.Size, p.SnapshotPath)
		return err
	}
}

func (s *Sink) writeJSON(p pathdata.PathData) error {
	rec := record{Date: p.ModifyTime.Format(time.RFC3339), Size: p.Size, Path: p.SnapshotPath, Live: p.IsLive}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if s.jsonStarted {
		if _, err := fmt.Fprint(s.w, ","); err != nil {
			return err
		}
	}
	s.jsonStarted = true
	_, err = s.w.Write(data)
	return err
}
