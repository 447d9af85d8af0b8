// diff.go implements the non-native fallback of spec.md §4.I step 2:
// "Diffs S against the current live state of D (using native diff when
// available, else recursive walk + metadata compare + content compare on
// size-match)". Grounded on the original's library/diff_copy.rs walk-and-
// compare fallback used when a filesystem lacks a native diff facility.
package restore

import (
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// WalkDiff compares snapshotRoot against liveRoot, returning paths
// (relative to both roots) that changed or were created in the snapshot,
// and paths present live but absent from the snapshot (to be removed).
// Two same-size files are compared by content hash before being
// considered unchanged; different-size or different-existence always
// counts as changed.
func WalkDiff(snapshotRoot, liveRoot string) (changed, removedLive []string, err error) {
	snapFiles := make(map[string]os.FileInfo)
	err = filepath.Walk(snapshotRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil // transient per-entry errors are dropped, not fatal (§7)
		}
		rel, relErr := filepath.Rel(snapshotRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		snapFiles[rel] = info
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	liveFiles := make(map[string]os.FileInfo)
	_ = filepath.Walk(liveRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(liveRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		liveFiles[rel] = info
		return nil
	})

	for rel, snapInfo := range snapFiles {
		liveInfo, exists := liveFiles[rel]
		if !exists {
			changed = append(changed, rel)
			continue
		}
		if snapInfo.IsDir() != liveInfo.IsDir() {
			changed = append(changed, rel)
			continue
		}
		if snapInfo.IsDir() {
			continue
		}
		if snapInfo.Size() != liveInfo.Size() {
			changed = append(changed, rel)
			continue
		}
		same, hashErr := sameContent(filepath.Join(snapshotRoot, rel), filepath.Join(liveRoot, rel))
		if hashErr != nil || !same {
			changed = append(changed, rel)
		}
	}

	for rel := range liveFiles {
		if _, ok := snapFiles[rel]; !ok {
			removedLive = append(removedLive, rel)
		}
	}

	return changed, removedLive, nil
}

func sameContent(a, b string) (bool, error) {
	ha, err := hashFile(a)
	if err != nil {
		return false, err
	}
	hb, err := hashFile(b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}

func hashFile(path string) ([32]byte, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
