// Package versions implements spec.md §4.E, the Version Enumerator: stat
// candidate paths in parallel over a bounded worker pool, then release
// results on a single ordered stream even though the stats themselves
// complete out of order.
//
// Grounded on the teacher's vvfs/filesystem/concurrent_traverser.go
// (sourcegraph/conc/pool-backed bounded concurrency, atomic stat
// counters) generalized from "walk a directory tree" to "stat a candidate
// list", plus vvfs/indexing/bitmaps.go's RoaringBitmap/roaring usage
// repurposed from "attribute intersection" to "which input indices have
// completed, so the reorder buffer knows the contiguous prefix it may
// flush" (SPEC_FULL.md §11).
package versions

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/httm-go/httm/internal/candidates"
	"github.com/httm-go/httm/internal/errkind"
	"github.com/httm-go/httm/internal/pathdata"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkerMultiplier mirrors httm.DefaultWorkerMultiplier without
// importing the internal/httm package, keeping the dependency edge
// pointed the way the package layout diagram in SPEC_FULL.md §13 expects.
const DefaultWorkerMultiplier = 2

// Enumerator runs the parallel-stat, ordered-release pipeline of §4.E.
type Enumerator struct {
	log         zerolog.Logger
	workerCount int
	errSink     func(path string, err error)
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithWorkerCount overrides the default pool width (runtime.NumCPU() *
// DefaultWorkerMultiplier).
func WithWorkerCount(n int) Option {
	return func(e *Enumerator) {
		if n > 0 {
			e.workerCount = n
		}
	}
}

// WithErrorSink registers the per-candidate error sink of spec.md §4.E /
// §7 (TransientIO kinds are logged as warnings here, not returned).
func WithErrorSink(sink func(path string, err error)) Option {
	return func(e *Enumerator) { e.errSink = sink }
}

// New constructs an Enumerator bound to log, with sensible defaults.
func New(log zerolog.Logger, opts ...Option) *Enumerator {
	e := &Enumerator{
		log:         log,
		workerCount: runtime.NumCPU() * DefaultWorkerMultiplier,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workerCount < 1 {
		e.workerCount = 1
	}
	return e
}

// Enumerate stats every candidate in cands over a bounded pool and
// collects PathData in (mtime, layout-timestamp, snapshot-path) order —
// spec.md §4.E / §8 invariant 4 — then, if livePath exists, appends its
// live entry. This is the convenience, non-streaming form used by callers
// (engine.List, the Deleted-File Reconstructor, the Walker) that need the
// whole VersionMap at once;
// EnumerateStream below is the lazy form described in spec.md §9.
func (e *Enumerator) Enumerate(ctx context.Context, livePath string, cands []candidates.Candidate) []pathdata.PathData {
	var results []pathdata.PathData
	for d := range e.EnumerateStream(ctx, cands) {
		results = append(results, d)
	}

	// Candidates are stat'd out of the snapshot-timestamp order the roots
	// were yielded in only with respect to wall-clock completion; the
	// reorder buffer in EnumerateStream already releases them by input
	// index, which matches snapshot-root ascending order (§4.D). A final
	// sort re-establishes the full §4.E/§8 total order across ModifyTime,
	// since two different snapshot roots may disagree with their own
	// layout-timestamp order once real mtimes are known.
	sort.Slice(results, func(i, j int) bool { return pathdata.Less(results[i], results[j]) })

	if live, ok := e.statLive(livePath); ok {
		results = append(results, live)
	}

	return results
}

// EnumerateStream submits one stat job per candidate to a bounded conc
// pool and streams results on the returned channel strictly in input-index
// order, even though the underlying stats complete out of order. This is
// spec.md §9's "Lazy, ordered parallelism" design: assign each candidate a
// monotonically increasing input index, submit to the pool, and reassemble
// by index into an output channel with bounded capacity — never collecting
// the full result set before releasing the contiguous prefix that is
// ready. A roaring bitmap tracks which indices have completed, echoing the
// teacher's indexing.AttributeBitmaps repurposed here from
// attribute-intersection to completion-tracking (SPEC_FULL.md §11). The
// channel is closed once every candidate has been released or ctx is
// cancelled.
func (e *Enumerator) EnumerateStream(ctx context.Context, cands []candidates.Candidate) <-chan pathdata.PathData {
	out := make(chan pathdata.PathData, e.workerCount)
	if len(cands) == 0 {
		close(out)
		return out
	}

	go func() {
		defer close(out)

		p := pool.New().WithMaxGoroutines(e.workerCount).WithContext(ctx)

		var mu sync.Mutex
		completed := roaring.New()
		buf := make(map[int]*pathdata.PathData, len(cands))
		nextToRelease := 0

		// release flushes the contiguous run of completed indices
		// starting at nextToRelease, blocking on send for back-pressure
		// per spec.md §5(b).
		release := func() bool {
			for {
				if !completed.Contains(uint32(nextToRelease)) {
					return true
				}
				data := buf[nextToRelease]
				delete(buf, nextToRelease)
				nextToRelease++
				if data != nil {
					select {
					case out <- *data:
					case <-ctx.Done():
						return false
					}
				}
				if nextToRelease >= len(cands) {
					return true
				}
			}
		}

		for i, c := range cands {
			i, c := i, c
			p.Go(func(ctx context.Context) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				data := e.statOne(c)

				mu.Lock()
				buf[i] = data
				completed.Add(uint32(i))
				ok := release()
				mu.Unlock()

				if !ok {
					return ctx.Err()
				}
				return nil
			})
		}

		_ = p.Wait() // per-candidate errors are already demoted to warnings inside statOne
	}()

	return out
}

// statOne performs a single candidate's lstat, classifying the outcome
// per spec.md §4.E: NOENT is silently dropped; other errors are routed to
// the error sink and the candidate is dropped; a hit produces a PathData
// carrying the candidate's (deferred, now-forced) layout timestamp.
func (e *Enumerator) statOne(c candidates.Candidate) *pathdata.PathData {
	info, err := os.Lstat(c.SnapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		wrapped := errkind.New(errkind.TransientIO, "versions.statOne", err)
		if e.errSink != nil {
			e.errSink(c.SnapshotPath, wrapped)
		} else {
			e.log.Warn().Err(err).Str("path", c.SnapshotPath).Msg("versions: dropping candidate after stat error")
		}
		return nil
	}

	return &pathdata.PathData{
		SnapshotPath:    c.SnapshotPath,
		ModifyTime:      info.ModTime(),
		Size:            info.Size(),
		LayoutTimestamp: c.Root.Timestamp(),
		SnapshotName:    c.Root.SnapshotName,
	}
}

// statLive stats the live path itself, producing the marker is-live=true
// entry spec.md §4.E appends at the tail.
func (e *Enumerator) statLive(livePath string) (pathdata.PathData, bool) {
	if livePath == "" {
		return pathdata.PathData{}, false
	}
	abs, err := filepath.Abs(livePath)
	if err != nil {
		abs = livePath
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return pathdata.PathData{}, false
	}
	return pathdata.PathData{
		SnapshotPath: abs,
		ModifyTime:   info.ModTime(),
		Size:         info.Size(),
		IsLive:       true,
	}, true
}
