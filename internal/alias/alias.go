// Package alias implements spec.md §4.C, the Alias & Alt-Store Map: a
// user-supplied list of `live-prefix:snapshot-prefix` pairs, consulted
// before §4.D's candidate mapper runs, plus the registration of alt-store
// roots (Time Machine, Restic) as synthetic layouts sharing the same
// interface.
//
// Grounded on the original's parse/aliases.rs (split_once(':') parsing,
// existence-checked pairs) and parse/alts.rs (alternate-replicated-dataset
// registration), translated from a BTreeMap<PathBuf, _> into Go's
// sorted-slice-plus-longest-prefix-match idiom matching
// internal/mounts.Inventory.OwningMount.
package alias

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/httm-go/httm/internal/errkind"
	"github.com/httm-go/httm/internal/layout"
)

// Pair is one `live-prefix:snapshot-prefix` mapping (spec.md §4.C).
type Pair struct {
	LivePrefix     string
	SnapshotPrefix string
}

// ParsePair parses the "live:snapshot" CLI/config syntax.
func ParsePair(raw string) (Pair, error) {
	livePrefix, snapPrefix, ok := strings.Cut(raw, ":")
	if !ok {
		return Pair{}, errkind.New(errkind.Configuration, "alias.ParsePair",
			fmt.Errorf("alias %q: must use ':' delimiter between live-prefix and snapshot-prefix", raw))
	}
	return Pair{LivePrefix: filepath.Clean(livePrefix), SnapshotPrefix: filepath.Clean(snapPrefix)}, nil
}

// AltStoreEntry registers one alt-store root under a live-path prefix it
// replicates (spec.md §4.C, "Alt-stores ... modeled as synthetic
// layouts").
type AltStoreEntry struct {
	LivePrefix string
	Store      layout.AltStore
}

// Map resolves live-path prefixes to snapshot-prefix substitutions and
// alt-store roots. Constructed once at startup from config; read-only
// thereafter (spec.md §5).
type Map struct {
	pairs     []Pair // sorted longest-prefix-first
	altStores []AltStoreEntry
}

// New validates pairs (both sides must exist, per the original's
// existence check in parse/aliases.rs) and sorts them longest-prefix-first
// so Substitute's linear scan finds the most specific match.
func New(pairs []Pair, altStores []AltStoreEntry) (*Map, error) {
	valid := make([]Pair, 0, len(pairs))
	for _, p := range pairs {
		if _, err := os.Stat(p.LivePrefix); err != nil {
			continue
		}
		if _, err := os.Stat(p.SnapshotPrefix); err != nil {
			continue
		}
		valid = append(valid, p)
	}
	sort.Slice(valid, func(i, j int) bool { return len(valid[i].LivePrefix) > len(valid[j].LivePrefix) })

	sortedAlts := make([]AltStoreEntry, len(altStores))
	copy(sortedAlts, altStores)
	sort.Slice(sortedAlts, func(i, j int) bool { return len(sortedAlts[i].LivePrefix) > len(sortedAlts[j].LivePrefix) })

	return &Map{pairs: valid, altStores: sortedAlts}, nil
}

// Substitute returns the snapshot-prefix-rewritten path for canonical live
// path p, if p is descended from a configured live-prefix (spec.md §4.C).
func (m *Map) Substitute(p string) (string, bool) {
	clean := filepath.Clean(p)
	for _, pair := range m.pairs {
		if clean == pair.LivePrefix || hasPathPrefix(clean, pair.LivePrefix) {
			rel := strings.TrimPrefix(clean, pair.LivePrefix)
			return filepath.Join(pair.SnapshotPrefix, rel), true
		}
	}
	return "", false
}

// AltStoresFor returns every configured alt-store whose live-prefix is an
// ancestor of (or equal to) p, along with p's path relative to that
// prefix, per the original's MostProximateAndOptAlts union-with-primary
// search (SPEC_FULL.md §12.5).
func (m *Map) AltStoresFor(p string) []AltStoreMatch {
	clean := filepath.Clean(p)
	var matches []AltStoreMatch
	for _, entry := range m.altStores {
		if clean == entry.LivePrefix || hasPathPrefix(clean, entry.LivePrefix) {
			rel := strings.TrimPrefix(clean, entry.LivePrefix)
			rel = strings.TrimPrefix(rel, string(filepath.Separator))
			matches = append(matches, AltStoreMatch{Store: entry.Store, Relative: rel})
		}
	}
	return matches
}

// AltStoreMatch pairs an alt-store with the live path's relative suffix
// under that store's configured prefix.
type AltStoreMatch struct {
	Store    layout.AltStore
	Relative string
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) <= len(prefix) {
		return false
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == filepath.Separator
}
