package walk

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/httm-go/httm/internal/candidates"
	"github.com/httm-go/httm/internal/deleted"
	"github.com/httm-go/httm/internal/httm"
	"github.com/httm-go/httm/internal/versions"
	"github.com/stretchr/testify/require"
)

func TestWalkEmitsEveryLiveNodePreOrder(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(filepath.Join(live, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "top.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(live, "sub", "nested.txt"), []byte("b"), 0o644))

	mapper := candidates.NewForTest(nil)
	enumerator := versions.New(httm.Logger())
	reconstructor := deleted.New(mapper, enumerator)
	w := New(mapper, enumerator, reconstructor, 4)

	var paths []string
	for rec := range w.Walk(context.Background(), []string{live}, Options{MaxDepth: -1}) {
		paths = append(paths, rec.LivePath)
	}

	require.Contains(t, paths, live)
	require.Contains(t, paths, filepath.Join(live, "sub"))
	require.Equal(t, live, paths[0], "pre-order: root emitted before its children")
}

func TestWalkRespectsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(filepath.Join(live, "a", "b"), 0o755))

	mapper := candidates.NewForTest(nil)
	enumerator := versions.New(httm.Logger())
	reconstructor := deleted.New(mapper, enumerator)
	w := New(mapper, enumerator, reconstructor, 4)

	var paths []string
	for rec := range w.Walk(context.Background(), []string{live}, Options{MaxDepth: 1}) {
		paths = append(paths, rec.LivePath)
	}

	require.Contains(t, paths, live)
	require.Contains(t, paths, filepath.Join(live, "a"))
	require.NotContains(t, paths, filepath.Join(live, "a", "b"))
}

func TestWalkStopsOnCancellation(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(live, 0o755))
	for i := 0; i < 50; i++ {
		require.NoError(t, os.MkdirAll(filepath.Join(live, string(rune('a'+i%26)), string(rune('0'+i%10))), 0o755))
	}

	mapper := candidates.NewForTest(nil)
	enumerator := versions.New(httm.Logger())
	reconstructor := deleted.New(mapper, enumerator)
	w := New(mapper, enumerator, reconstructor, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		for range w.Walk(ctx, []string{live}, Options{MaxDepth: -1}) {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("walk did not stop after context cancellation")
	}
}
