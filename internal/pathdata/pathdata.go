// Package pathdata implements spec.md §3's core data model: PathData, the
// VersionMap sequence it populates, and the UniquenessLevel that governs
// identity for deduplication (§4.F). Grounded on the teacher's
// vvfs/trees/filemetadata.go and vvfs/trees/metadata.go (a Metadata struct
// plus a comparable identity), generalized from "one file's current state"
// to "one historical version of a file, possibly phantom".
package pathdata

import (
	"time"
)

// UniquenessLevel selects the identity function the Deduplication Filter
// (§4.F) uses to decide whether two versions are "the same".
type UniquenessLevel int

const (
	// Metadata identity is (mtime, size). Cheap; the default.
	Metadata UniquenessLevel = iota
	// Contents identity is (size, blake3 of file bytes). Hashing is lazy:
	// computed only when two candidates share a size.
	Contents
	// All treats every entry as uniquely identified; nothing collapses.
	All
)

func (u UniquenessLevel) String() string {
	switch u {
	case Contents:
		return "contents"
	case All:
		return "all"
	default:
		return "metadata"
	}
}

// ParseUniquenessLevel accepts the config/CLI spelling of a level.
func ParseUniquenessLevel(s string) UniquenessLevel {
	switch s {
	case "contents":
		return Contents
	case "all":
		return All
	default:
		return Metadata
	}
}

// PathData is a single historical version of a live path (spec.md §3).
type PathData struct {
	// SnapshotPath is the absolute path under a snapshot root, or the live
	// path itself when IsLive is true.
	SnapshotPath string
	// ModifyTime is the version's mtime; the ordering key for VersionMap.
	ModifyTime time.Time
	Size       int64

	// LayoutTimestamp is the snapshot root's own logical timestamp (e.g.
	// the ZFS snapshot directory's ctime), used as the first tie-break
	// when two versions share ModifyTime (spec.md §4.E).
	LayoutTimestamp time.Time

	// SnapshotName identifies the owning snapshot (e.g. "autosnap_2024...")
	// for display and for restore/roll-forward targeting.
	SnapshotName string

	// IsLive marks the live-file entry conceptually appended at the tail
	// of a VersionMap (§3).
	IsLive bool

	// IsPhantom is true when no on-disk entry exists but a deleted-sibling
	// listing (§4.G) implies the entry existed; PathData in that case is
	// reconstructed from the last snapshot in which it appeared.
	IsPhantom bool

	// hash is the lazily computed content identity for UniquenessLevel
	// Contents. Populated by SetHash; hashed false means "not yet computed".
	hash [32]byte
	hashed bool
}

// Identity returns the comparable identity key for level u. For Contents,
// the caller must have recorded the hash with SetHash first (the Dedup
// Filter does this lazily); calling Identity before hashing with level Contents returns a
// size-only identity, which is intentional: a not-yet-hashed entry is
// always considered distinct from any previously hashed entry of a
// different size, and hashing is triggered on demand by the filter.
func (p *PathData) Identity(u UniquenessLevel) any {
	switch u {
	case Contents:
		if p.hashed {
			return contentsKey{Size: p.Size, Hash: p.hash}
		}
		return contentsKey{Size: p.Size}
	case All:
		// Unique per entry: the snapshot path is never repeated for a
		// given live query, so it alone is a valid identity.
		return p.SnapshotPath
	default:
		return metadataKey{ModNanos: p.ModifyTime.UnixNano(), Size: p.Size}
	}
}

type metadataKey struct {
	ModNanos int64
	Size     int64
}

type contentsKey struct {
	Size int64
	Hash [32]byte
}

// HasHash reports whether SetHash has already run for this entry.
func (p *PathData) HasHash() bool { return p.hashed }

// SetHash records the lazily computed blake3 digest.
func (p *PathData) SetHash(h [32]byte) {
	p.hash = h
	p.hashed = true
}

// VersionMap is the ordered sequence of PathData for one live path,
// ascending by ModifyTime with ties broken by (LayoutTimestamp,
// SnapshotPath) per spec.md §3/§4.E/§8 invariant 4.
type VersionMap struct {
	LivePath string
	Entries  []PathData
}

// Less implements the VersionMap total order for sort.Slice / insertion.
func Less(a, b PathData) bool {
	if !a.ModifyTime.Equal(b.ModifyTime) {
		return a.ModifyTime.Before(b.ModifyTime)
	}
	if !a.LayoutTimestamp.Equal(b.LayoutTimestamp) {
		return a.LayoutTimestamp.Before(b.LayoutTimestamp)
	}
	return a.SnapshotPath < b.SnapshotPath
}
