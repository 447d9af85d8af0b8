package sink

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/httm-go/httm/internal/pathdata"
	"github.com/stretchr/testify/require"
)

func sampleRecord() pathdata.PathData {
	return pathdata.PathData{
		SnapshotPath: "/mnt/.zfs/snapshot/autosnap/home/user/file.txt",
		ModifyTime:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Size:         1234,
		IsLive:       false,
	}
}

func TestColumnarWritesSeparatorAndAlignedColumns(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, Columnar)
	require.NoError(t, s.Open())
	require.NoError(t, s.Write(sampleRecord()))
	require.NoError(t, s.WriteSeparator())
	require.NoError(t, s.Close())

	out := buf.String()
	require.Contains(t, out, "2024-01-02 03:04:05")
	require.Contains(t, out, "1234")
	require.Contains(t, out, "----")
}

func TestNullDelimitedEmitsNoSeparatorLine(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, NullDelimited)
	require.NoError(t, s.Open())
	require.NoError(t, s.Write(sampleRecord()))
	require.NoError(t, s.WriteSeparator())
	require.NoError(t, s.Close())

	require.Equal(t, sampleRecord().SnapshotPath+"\x00", buf.String())
}

func TestTabDelimitedFields(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, TabDelimited)
	require.NoError(t, s.Write(sampleRecord()))

	fields := strings.Split(strings.TrimRight(buf.String(), "\n"), "\t")
	require.Len(t, fields, 4)
	require.Equal(t, "1234", fields[1])
	require.Equal(t, "false", fields[3])
}

func TestRawPathEmitsBarePath(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, RawPath)
	require.NoError(t, s.Write(sampleRecord()))
	require.Equal(t, sampleRecord().SnapshotPath+"\n", buf.String())
}

func TestJSONWrapsStreamInArray(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, JSON)
	require.NoError(t, s.Open())
	require.NoError(t, s.Write(sampleRecord()))
	live := sampleRecord()
	live.IsLive = true
	require.NoError(t, s.Write(live))
	require.NoError(t, s.Close())

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "["))
	require.True(t, strings.HasSuffix(out, "]\n"))
	require.Equal(t, 1, strings.Count(out, "},{"))
	require.Contains(t, out, `"live":false`)
	require.Contains(t, out, `"live":true`)
}

func TestJSONEmptyStreamIsEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, JSON)
	require.NoError(t, s.Open())
	require.NoError(t, s.Close())
	require.Equal(t, "[]\n", buf.String())
}

func TestCSVWritesHeaderThenRows(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf, CSV)
	require.NoError(t, s.Open())
	require.NoError(t, s.Write(sampleRecord()))
	require.NoError(t, s.Close())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "date,size,path,live", lines[0])
	require.Contains(t, lines[1], sampleRecord().SnapshotPath)
}

func TestParseFormatRoundTrip(t *testing.T) {
	require.Equal(t, NullDelimited, ParseFormat("null"))
	require.Equal(t, TabDelimited, ParseFormat("tab"))
	require.Equal(t, JSON, ParseFormat("json"))
	require.Equal(t, CSV, ParseFormat("csv"))
	require.Equal(t, RawPath, ParseFormat("raw"))
	require.Equal(t, Columnar, ParseFormat("anything-else"))
}
