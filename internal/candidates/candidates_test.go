package candidates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeResolvesMissingLeaf(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "real"), 0o755))

	got, err := canonicalize(filepath.Join(dir, "real", "missing.txt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "real", "missing.txt"), got)
}

func TestCanonicalizeResolvesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.MkdirAll(target, 0o755))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	got, err := canonicalize(link)
	require.NoError(t, err)
	require.Equal(t, target, got)
}
