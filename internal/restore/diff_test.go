package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWalkDiffDetectsChangedRemovedAndUnchanged(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "snap")
	live := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(snap, 0o755))
	require.NoError(t, os.MkdirAll(live, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(snap, "unchanged.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "unchanged.txt"), []byte("same"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(snap, "modified.txt"), []byte("new-content"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "modified.txt"), []byte("old-content"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(snap, "created.txt"), []byte("brand-new"), 0o644))

	require.NoError(t, os.WriteFile(filepath.Join(live, "deleted.txt"), []byte("gone-in-snapshot"), 0o644))

	changed, removed, err := WalkDiff(snap, live)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"modified.txt", "created.txt"}, changed)
	require.ElementsMatch(t, []string{"deleted.txt"}, removed)
}

func TestWalkDiffSameSizeDifferentContentCountsAsChanged(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "snap")
	live := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(snap, 0o755))
	require.NoError(t, os.MkdirAll(live, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(snap, "f.txt"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "f.txt"), []byte("bbbb"), 0o644))

	changed, _, err := WalkDiff(snap, live)
	require.NoError(t, err)
	require.Equal(t, []string{"f.txt"}, changed)
}
