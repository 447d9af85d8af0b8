// Package deleted implements spec.md §4.G, the Deleted-File Reconstructor:
// for a live directory, synthesize the union of directory entries that
// ever existed at that path across all snapshots, reporting each only
// under the latest snapshot in which it last appeared.
//
// Grounded on the original's lookup/deleted.rs (newest-to-oldest readdir
// accumulation into a membership set, live-name removal, last-appearance
// PathData capture) and the teacher's vvfs/trees/directorytree.go's
// union-of-children bookkeeping, generalized from "merge an in-memory tree
// snapshot" to "merge on-disk directory listings across time".
package deleted

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/httm-go/httm/internal/candidates"
	"github.com/httm-go/httm/internal/pathdata"
	"github.com/httm-go/httm/internal/versions"
)

// Entry is one reconstructed deleted directory member (spec.md §3's
// DeletedEntry): its name, the latest snapshot in which it last existed,
// and that snapshot's PathData.
type Entry struct {
	Name             string
	LastSeenSnapshot string
	Data             pathdata.PathData
}

// Reconstructor runs the algorithm of spec.md §4.G over a live directory.
type Reconstructor struct {
	mapper     *candidates.Mapper
	enumerator *versions.Enumerator
}

// New constructs a Reconstructor.
func New(mapper *candidates.Mapper, enumerator *versions.Enumerator) *Reconstructor {
	return &Reconstructor{mapper: mapper, enumerator: enumerator}
}

// Reconstruct implements spec.md §4.G's algorithm:
//  1. obtain D's own snapshot versions via the candidates mapper;
//  2. readdir each snapshot version newest-to-oldest, accumulating names
//     into a membership set, recording the first (i.e. latest) snapshot
//     each name is observed in;
//  3. readdir the live D, if it exists, and drop those live names from
//     the membership set;
//  4. emit one Entry per remaining name, tagged with its last-appearance
//     snapshot and that snapshot's stat of the name.
//
// D may not exist live (step 3 is then skipped entirely, per spec.md's
// edge case). Entries are returned sorted by name for deterministic
// output.
func (r *Reconstructor) Reconstruct(ctx context.Context, liveDir string) ([]Entry, error) {
	dirVersions := r.enumerator.Enumerate(ctx, "", r.mapper.Candidates(liveDir))

	// Process newest-to-oldest: dirVersions is ascending by mtime (spec.md
	// §4.E), so walk it in reverse.
	type seen struct {
		snapshotName string
		snapshotPath string
	}
	firstSeenIn := make(map[string]seen)

	for i := len(dirVersions) - 1; i >= 0; i-- {
		snapDir := dirVersions[i]
		names, err := os.ReadDir(snapDir.SnapshotPath)
		if err != nil {
			continue
		}
		for _, n := range names {
			if _, already := firstSeenIn[n.Name()]; already {
				continue // a later (newer) snapshot already claimed this name
			}
			firstSeenIn[n.Name()] = seen{snapshotName: snapDir.SnapshotName, snapshotPath: snapDir.SnapshotPath}
		}
	}

	if liveNames, err := os.ReadDir(liveDir); err == nil {
		for _, n := range liveNames {
			delete(firstSeenIn, n.Name())
		}
	}
	// If liveDir does not exist, step 3 is skipped: every accumulated name
	// remains a deleted candidate (spec.md §4.G edge case).

	out := make([]Entry, 0, len(firstSeenIn))
	for name, s := range firstSeenIn {
		childPath := filepath.Join(s.snapshotPath, name)
		info, err := os.Lstat(childPath)
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:             name,
			LastSeenSnapshot: s.snapshotName,
			Data: pathdata.PathData{
				SnapshotPath: childPath,
				ModifyTime:   info.ModTime(),
				Size:         info.Size(),
				SnapshotName: s.snapshotName,
				IsPhantom:    true,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
