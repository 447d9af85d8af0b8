// Package dedup implements spec.md §4.F, the Deduplication Filter: a
// stateful, single-pass collapse of an ordered version stream by identity,
// followed by composable ditto/last-snap/omit policies.
//
// Grounded on the teacher's vvfs/filesystem/services/conflict_resolver.go
// (strategy-table dispatch over a small enum) for the LastSnap policy
// shape, generalized from "resolve one file conflict" to "pick one
// surviving snapshot entry per VersionMap".
package dedup

import (
	"io"
	"os"

	"github.com/httm-go/httm/internal/pathdata"
	"github.com/zeebo/blake3"
)

// LastSnapMode selects which snapshot entries survive a last-snap-only
// policy (spec.md §4.F).
type LastSnapMode int

const (
	LastSnapNone LastSnapMode = iota
	LastSnapAny
	LastSnapNoDitto
	LastSnapNoDittoInclusive
)

// Policies bundles the composable post-collapse policies of spec.md §4.F.
type Policies struct {
	OmitDitto bool
	NoLive    bool
	NoSnap    bool
	LastSnap  LastSnapMode
}

// Filter applies UniquenessLevel-based identity collapse, then Policies,
// to an ordered VersionMap. It is single-consumer and holds no state
// across calls to Apply (each call is a fresh single pass, matching
// spec.md §8 invariant 5: applying the filter twice to an already-filtered
// stream is a no-op).
type Filter struct {
	Level    pathdata.UniquenessLevel
	Policies Policies
}

// New constructs a Filter.
func New(level pathdata.UniquenessLevel, policies Policies) *Filter {
	return &Filter{Level: level, Policies: policies}
}

// Apply runs the full §4.F pipeline: identity collapse (keeping the
// earliest of each adjacent identity run, per the collapse rule), then
// the composable policies.
func (f *Filter) Apply(entries []pathdata.PathData) []pathdata.PathData {
	collapsed := f.collapse(entries)
	return f.applyPolicies(collapsed)
}

// collapse drops any snapshot entry whose identity equals the immediately
// preceding kept snapshot entry's identity, keeping the earliest of each
// run (spec.md §4.F "Collapse rule"). For UniquenessLevel::Contents,
// hashing is lazy: if the prior kept entry's size differs from the
// candidate's, no hash is computed for either.
//
// The live entry, if present, is always the trailing element (spec.md §3's
// VersionMap invariant) and never participates in the collapse: comparing
// it against the last snapshot is applyPolicies's OmitDitto's job, not
// collapse's, since collapsing it away here would silently lose the
// IsLive marker.
func (f *Filter) collapse(entries []pathdata.PathData) []pathdata.PathData {
	if f.Level == pathdata.All || len(entries) == 0 {
		return entries
	}

	snaps := entries
	var live *pathdata.PathData
	if n := len(entries); entries[n-1].IsLive {
		live = &entries[n-1]
		snaps = entries[:n-1]
	}
	if len(snaps) == 0 {
		return entries
	}

	out := make([]pathdata.PathData, 0, len(snaps))
	out = append(out, snaps[0])

	for i := 1; i < len(snaps); i++ {
		prev := &out[len(out)-1]
		cur := snaps[i]

		if f.Level == pathdata.Contents && prev.Size == cur.Size {
			ensureHash(prev)
			ensureHash(&cur)
		}

		if prev.Identity(f.Level) == cur.Identity(f.Level) {
			continue // collapse: keep the earlier (prev) entry
		}
		out = append(out, cur)
	}

	if live != nil {
		out = append(out, *live)
	}
	return out
}

// ensureHash lazily computes and caches a PathData's blake3 content
// identity the first time it is needed for a size-matching comparison
// (spec.md §4.F: "Hashing is lazy").
func ensureHash(p *pathdata.PathData) {
	if p.HasHash() {
		return
	}
	f, err := os.Open(p.SnapshotPath)
	if err != nil {
		return
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	p.SetHash(sum)
}

// applyPolicies applies omit-ditto, no-live, no-snap, and last-snap over
// an already-collapsed sequence. The live entry, if present, is always the
// final element of entries (spec.md §3's VersionMap invariant).
func (f *Filter) applyPolicies(entries []pathdata.PathData) []pathdata.PathData {
	if len(entries) == 0 {
		return entries
	}

	var live *pathdata.PathData
	snaps := entries
	if n := len(entries); n > 0 && entries[n-1].IsLive {
		live = &entries[n-1]
		snaps = entries[:n-1]
	}

	if f.Policies.NoSnap {
		snaps = nil
	} else if f.Policies.LastSnap != LastSnapNone {
		snaps = f.applyLastSnap(snaps, live)
	}

	if f.Policies.OmitDitto && live != nil {
		filtered := snaps[:0:0]
		for _, s := range snaps {
			s := s
			if f.Level == pathdata.Contents && s.Size == live.Size {
				ensureHash(&s)
				ensureHash(live)
			}
			// Recompute live's identity inside the loop: ensureHash may
			// have just populated live.hash, and a stale pre-hash
			// identity would never compare equal to a freshly hashed
			// snapshot entry of the same size.
			if s.Identity(f.Level) == live.Identity(f.Level) {
				continue
			}
			filtered = append(filtered, s)
		}
		snaps = filtered
	}

	out := snaps
	if !f.Policies.NoLive && live != nil {
		out = append(out, *live)
	}
	return out
}

// applyLastSnap keeps only the last snapshot entry matching the active
// LastSnapMode (spec.md §4.F).
func (f *Filter) applyLastSnap(snaps []pathdata.PathData, live *pathdata.PathData) []pathdata.PathData {
	if len(snaps) == 0 {
		return snaps
	}

	for i := len(snaps) - 1; i >= 0; i-- {
		candidate := snaps[i]
		switch f.Policies.LastSnap {
		case LastSnapAny:
			return []pathdata.PathData{candidate}
		case LastSnapNoDitto, LastSnapNoDittoInclusive:
			if live == nil {
				return []pathdata.PathData{candidate}
			}
			if f.Level == pathdata.Contents && candidate.Size == live.Size {
				ensureHash(&candidate)
				ensureHash(live)
			}
			if candidate.Identity(f.Level) == live.Identity(f.Level) {
				// identical to live: this candidate is dropped by
				// NoDitto; NoDittoInclusive additionally signals "no
				// change versus live" was reached by returning no
				// snapshot entries at all.
				if f.Policies.LastSnap == LastSnapNoDittoInclusive {
					return nil
				}
				continue
			}
			return []pathdata.PathData{candidate}
		}
	}
	return nil
}
