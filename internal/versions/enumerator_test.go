package versions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/httm-go/httm/internal/candidates"
	"github.com/httm-go/httm/internal/httm"
	"github.com/httm-go/httm/internal/layout"
	"github.com/stretchr/testify/require"
)

func TestEnumerateOrdersByModTimeAndAppendsLive(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live.txt")
	snapOld := filepath.Join(dir, "snap-old.txt")
	snapNew := filepath.Join(dir, "snap-new.txt")
	require.NoError(t, os.WriteFile(live, []byte("live"), 0o644))
	require.NoError(t, os.WriteFile(snapOld, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(snapNew, []byte("new"), 0o644))

	old := time.Now().Add(-time.Hour)
	recent := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(snapOld, old, old))
	require.NoError(t, os.Chtimes(snapNew, recent, recent))

	cands := []candidates.Candidate{
		{SnapshotPath: snapNew, Root: layout.NewRoot(filepath.Dir(snapNew), "new", func() time.Time { return recent })},
		{SnapshotPath: snapOld, Root: layout.NewRoot(filepath.Dir(snapOld), "old", func() time.Time { return old })},
	}

	e := New(httm.Logger(), WithWorkerCount(2))
	out := e.Enumerate(context.Background(), live, cands)

	require.Len(t, out, 3)
	require.Equal(t, snapOld, out[0].SnapshotPath)
	require.Equal(t, snapNew, out[1].SnapshotPath)
	require.True(t, out[2].IsLive)
	require.Equal(t, live, out[2].SnapshotPath)
}

func TestEnumerateDropsMissingCandidates(t *testing.T) {
	dir := t.TempDir()
	cands := []candidates.Candidate{
		{SnapshotPath: filepath.Join(dir, "does-not-exist"), Root: layout.NewRoot(dir, "x", nil)},
	}
	e := New(httm.Logger())
	out := e.Enumerate(context.Background(), "", cands)
	require.Empty(t, out)
}

func TestEnumerateStreamReleasesInInputOrderUnderConcurrency(t *testing.T) {
	dir := t.TempDir()
	var cands []candidates.Candidate
	for i := 0; i < 20; i++ {
		p := filepath.Join(dir, string(rune('a'+i)))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
		cands = append(cands, candidates.Candidate{SnapshotPath: p, Root: layout.NewRoot(dir, "r", nil)})
	}

	e := New(httm.Logger(), WithWorkerCount(8))
	var got []string
	for d := range e.EnumerateStream(context.Background(), cands) {
		got = append(got, d.SnapshotPath)
	}

	require.Len(t, got, 20)
	for i, c := range cands {
		require.Equal(t, c.SnapshotPath, got[i])
	}
}
