package alias

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/httm-go/httm/internal/layout"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("/live:/mnt/snap")
	require.NoError(t, err)
	require.Equal(t, "/live", p.LivePrefix)
	require.Equal(t, "/mnt/snap", p.SnapshotPrefix)

	_, err = ParsePair("no-delimiter")
	require.Error(t, err)
}

func TestSubstituteLongestPrefixWins(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live")
	liveNested := filepath.Join(dir, "live", "nested")
	snapOuter := filepath.Join(dir, "snap-outer")
	snapInner := filepath.Join(dir, "snap-inner")
	for _, d := range []string{live, liveNested, snapOuter, snapInner} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	m, err := New([]Pair{
		{LivePrefix: live, SnapshotPrefix: snapOuter},
		{LivePrefix: liveNested, SnapshotPrefix: snapInner},
	}, nil)
	require.NoError(t, err)

	got, ok := m.Substitute(filepath.Join(liveNested, "file.txt"))
	require.True(t, ok)
	require.Equal(t, filepath.Join(snapInner, "file.txt"), got)

	got, ok = m.Substitute(filepath.Join(live, "other.txt"))
	require.True(t, ok)
	require.Equal(t, filepath.Join(snapOuter, "other.txt"), got)
}

func TestNewDropsPairsWithMissingSides(t *testing.T) {
	m, err := New([]Pair{{LivePrefix: "/does/not/exist", SnapshotPrefix: "/also/missing"}}, nil)
	require.NoError(t, err)
	_, ok := m.Substitute("/does/not/exist/file")
	require.False(t, ok)
}

func TestAltStoresForReturnsRelativeSuffix(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "home")
	require.NoError(t, os.MkdirAll(live, 0o755))

	m, err := New(nil, []AltStoreEntry{
		{LivePrefix: live, Store: layout.AltStore{StoreRoot: "/backup", Kind: "restic"}},
	})
	require.NoError(t, err)

	matches := m.AltStoresFor(filepath.Join(live, "docs", "a.txt"))
	require.Len(t, matches, 1)
	require.Equal(t, filepath.Join("docs", "a.txt"), matches[0].Relative)
}
