package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/httm-go/httm/internal/httm"
	"github.com/httm-go/httm/internal/pathdata"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	require.Equal(t, Overwrite, ParseMode("overwrite"))
	require.Equal(t, Guard, ParseMode("guard"))
	require.Equal(t, Yolo, ParseMode("yolo"))
	require.Equal(t, Copy, ParseMode("anything-else"))
}

func TestSnapshotNameFormat(t *testing.T) {
	c := New(httm.Logger(), nil, "httmSnapFileMount", "httmSnapRollForward", true, "")
	name := c.snapshotName("")
	require.Regexp(t, `^httmSnapFileMount_\d{4}-\d{2}-\d{2}-\d{2}:\d{2}:\d{2}_httmSnapRollForward$`, name)
}

func TestSnapshotNameHonorsExplicitSuffix(t *testing.T) {
	c := New(httm.Logger(), nil, "prefix", "default-suffix", false, "")
	name := c.snapshotName("custom-suffix")
	require.Contains(t, name, "_custom-suffix")
	require.NotContains(t, name, "default-suffix")
}

func TestRestoreCopyRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))

	c := New(httm.Logger(), nil, "p", "s", false, "")
	_, err := c.Restore(nil, Request{Source: src, Destination: dst, Mode: Copy}, pathdata.Metadata, nil)
	require.Error(t, err)
}

func TestRestoreCopySucceedsWhenDestinationAbsent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("x"), 0o644))

	c := New(httm.Logger(), nil, "p", "s", false, "")
	_, err := c.Restore(nil, Request{Source: src, Destination: dst, Mode: Copy}, pathdata.Metadata, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
}

func TestRestoreOverwriteRefusesIdenticalSourceAndDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))

	c := New(httm.Logger(), nil, "p", "s", false, "")
	identical := func(a, b string, level pathdata.UniquenessLevel) (bool, error) { return true, nil }
	_, err := c.Restore(nil, Request{Source: src, Destination: dst, Mode: Overwrite}, pathdata.Metadata, identical)
	require.Error(t, err)
}

func TestRestoreOverwriteProceedsWhenNotIdentical(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("new"), 0o644))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "f.txt"), []byte("old"), 0o644))

	c := New(httm.Logger(), nil, "p", "s", false, "")
	identical := func(a, b string, level pathdata.UniquenessLevel) (bool, error) { return false, nil }
	_, err := c.Restore(nil, Request{Source: src, Destination: dst, Mode: Overwrite}, pathdata.Metadata, identical)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dst, "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
}

func TestRestoreYoloSkipsIdentityCheck(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "f.txt"), []byte("new"), 0o644))
	require.NoError(t, os.MkdirAll(dst, 0o755))

	c := New(httm.Logger(), nil, "p", "s", false, "")
	called := false
	identical := func(a, b string, level pathdata.UniquenessLevel) (bool, error) { called = true; return true, nil }
	_, err := c.Restore(nil, Request{Source: src, Destination: dst, Mode: Yolo}, pathdata.Metadata, identical)
	require.NoError(t, err)
	require.False(t, called, "yolo mode must skip the identity pre-flight entirely")
}
