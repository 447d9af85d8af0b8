// Package candidates implements spec.md §4.D, the Path→Candidates Mapper:
// given any live path, emit the ordered sequence of snapshot-root
// directories that could contain a historical version.
//
// Grounded on the original's lookup/file_mounts.rs
// (MostMostProximateAndOptAlts's per-mount candidate construction) and the
// teacher's vvfs/trees/pathindex.go longest-prefix lookup, reused here via
// internal/mounts.Inventory.OwningMount.
package candidates

import (
	"os"
	"path/filepath"
	"time"

	"github.com/httm-go/httm/internal/alias"
	"github.com/httm-go/httm/internal/layout"
	"github.com/httm-go/httm/internal/mounts"
)

// Candidate is one hypothetical snapshot path for a live path, paired with
// the layout root that produced it (so the Version Enumerator can recover
// the root's deferred timestamp without re-deriving it).
type Candidate struct {
	SnapshotPath string
	Root         layout.Root
}

// Mapper implements `candidates(P) -> ordered sequence of Candidate`
// (spec.md §4.D).
type Mapper struct {
	inv      *mounts.Inventory
	resolver *layout.Resolver
	aliases  *alias.Map

	// useFixed and fixed, when useFixed is true, short-circuit Candidates to
	// always return fixed regardless of the path queried. Set only by
	// NewForTest, so downstream packages (deleted, walk) can exercise
	// algorithms built on top of a Mapper without wiring a full Inventory.
	useFixed bool
	fixed    []Candidate
}

// New constructs a Mapper over an already-built Inventory and Resolver,
// optionally with an alias Map (nil is valid: no aliases configured).
func New(inv *mounts.Inventory, resolver *layout.Resolver, aliases *alias.Map) *Mapper {
	return &Mapper{inv: inv, resolver: resolver, aliases: aliases}
}

// NewForTest constructs a Mapper whose Candidates method ignores its
// argument and always returns cands, even when cands is empty or nil.
func NewForTest(cands []Candidate) *Mapper {
	return &Mapper{useFixed: true, fixed: cands}
}

// Candidates implements the four steps of spec.md §4.D:
//  1. canonicalize P (or its longest existing ancestor);
//  2. determine the owning mount by longest-prefix match;
//  3. fetch that mount's snapshot roots;
//  4. yield `<root>/<P relative to the mount>` for each root, in ascending
//     layout-timestamp order (the Resolver already sorts roots that way).
//
// If P lies outside every indexed mount and no alias applies, an empty
// sequence is returned — not an error, matching spec.md's "Error
// conditions" note in §4.D and the boundary behavior of §8.
func (mp *Mapper) Candidates(p string) []Candidate {
	if mp.useFixed {
		return mp.fixed
	}

	canon, err := canonicalize(p)
	if err != nil {
		return nil
	}

	if mp.aliases != nil {
		if substituted, ok := mp.aliases.Substitute(canon); ok {
			return mp.candidatesForAliasTarget(substituted)
		}
	}

	var out []Candidate
	if owner, ok := mp.inv.OwningMount(canon); ok && owner.Kind.SnapshotCapable() && !mp.inv.IsFilterDir(canon) {
		rel, relErr := filepath.Rel(owner.MountPoint, canon)
		if relErr == nil {
			for _, root := range mp.resolver.Roots(owner) {
				out = append(out, Candidate{SnapshotPath: filepath.Join(root.Path, rel), Root: root})
			}
		}
	}

	// §12.5 MostProximateAndOptAlts: union in any configured alt-stores for
	// the same live path, after the primary dataset's own candidates.
	if mp.aliases != nil {
		for _, match := range mp.aliases.AltStoresFor(canon) {
			for _, root := range match.Store.Roots(match.Relative) {
				out = append(out, Candidate{SnapshotPath: filepath.Join(root.Path, match.Relative), Root: root})
			}
		}
	}

	return out
}

// candidatesForAliasTarget treats an alias-substituted path as itself a
// snapshot-root-relative path: it is already expressed in snapshot-prefix
// space, so it is emitted as a single candidate whose root carries a
// best-effort timestamp (the target's own mtime) rather than a discovered
// layout.Root.
func (mp *Mapper) candidatesForAliasTarget(target string) []Candidate {
	info, err := os.Lstat(target)
	if err != nil {
		return nil
	}
	mtime := info.ModTime()
	root := layout.NewRoot(filepath.Dir(target), filepath.Base(filepath.Dir(target)), func() time.Time { return mtime })
	return []Candidate{{SnapshotPath: target, Root: root}}
}

// canonicalize resolves symlinks in p; if p does not exist, it resolves
// the longest existing ancestor and re-appends the missing suffix (spec.md
// §4.D step 1).
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(abs)
	var suffix []string
	suffix = append(suffix, filepath.Base(abs))

	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		if dir == string(filepath.Separator) || dir == "." {
			return abs, nil
		}
		suffix = append(suffix, filepath.Base(dir))
		dir = filepath.Dir(dir)
	}
}
