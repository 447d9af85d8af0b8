package restore

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/httm-go/httm/internal/mounts"
	zfs "github.com/mistifyio/go-zfs/v3"
)

// datasetNameFor resolves a ZFS dataset name from a mount's device field.
// go-zfs's Dataset API addresses datasets by name (e.g. "rpool/data"), not
// by mount point, matching the original's PathData::source() lookup in
// library/snap_guard.rs.
func datasetNameFor(m *mounts.MountEntry) string {
	return m.Device
}

// createZFSSnapshot invokes mistifyio/go-zfs/v3's Dataset.Snapshot, the
// library surface mirrored by other_examples/timaebi-go-zfs__iface.go.
func createZFSSnapshot(m *mounts.MountEntry, name string) (string, error) {
	ds, err := zfs.GetDataset(datasetNameFor(m))
	if err != nil {
		return "", fmt.Errorf("zfs: get dataset %s: %w", datasetNameFor(m), err)
	}
	snap, err := ds.Snapshot(name, false)
	if err != nil {
		return "", fmt.Errorf("zfs: snapshot %s@%s: %w", datasetNameFor(m), name, err)
	}
	return snap.Name, nil
}

// rollbackDataset invokes Dataset.Rollback against a named snapshot,
// destroying any snapshots more recent than it — used only by the
// roll-forward failure path to restore the pre-execution snapshot
// (spec.md §4.I step 5).
func rollbackDataset(m *mounts.MountEntry, snapName string) error {
	switch m.Kind {
	case mounts.ZFS:
		full := datasetNameFor(m) + "@" + snapName
		snap, err := zfs.GetDataset(full)
		if err != nil {
			return fmt.Errorf("zfs: get snapshot %s: %w", full, err)
		}
		return snap.Rollback(true)
	default:
		return fmt.Errorf("rollback unsupported for kind %s", m.Kind)
	}
}

// ZFSDiff invokes Dataset.Diff to compare the live dataset against a named
// snapshot, used by RollForward's diff step when native ZFS diffing is
// available (spec.md §4.I step 2, "using native diff when available").
func ZFSDiff(m *mounts.MountEntry, snapName string) (changed, removed []string, err error) {
	ds, err := zfs.GetDataset(datasetNameFor(m))
	if err != nil {
		return nil, nil, fmt.Errorf("zfs: get dataset %s: %w", datasetNameFor(m), err)
	}
	inodeChanges, err := ds.Diff(snapName)
	if err != nil {
		return nil, nil, fmt.Errorf("zfs: diff %s@%s: %w", datasetNameFor(m), snapName, err)
	}
	for _, ic := range inodeChanges {
		switch ic.Change {
		case zfs.Removed:
			removed = append(removed, ic.Path)
		case zfs.Created, zfs.Modified, zfs.Renamed:
			changed = append(changed, ic.Path)
		}
	}
	return changed, removed, nil
}

// createBtrfsSnapshot creates a read-only subvolume clone, per spec.md
// §4.I ("BTRFS-native: create a read-only subvolume clone").
func createBtrfsSnapshot(m *mounts.MountEntry, name string) (string, error) {
	dest := m.MountPoint + "/.snapshots/" + name
	out, err := exec.Command("btrfs", "subvolume", "snapshot", "-r", m.MountPoint, dest).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("btrfs subvolume snapshot: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return dest, nil
}

// createNILFS2Checkpoint requests a checkpoint and pins it as a snapshot
// via `chcp ss`, per spec.md §4.I ("NILFS2: request a checkpoint to
// become a snapshot").
func createNILFS2Checkpoint(m *mounts.MountEntry) (string, error) {
	out, err := exec.Command("lscp", "-s", m.Device).Output()
	if err != nil {
		return "", fmt.Errorf("nilfs2: lscp: %w", err)
	}
	cno := lastCheckpointNumber(string(out))
	if cno == "" {
		return "", fmt.Errorf("nilfs2: no checkpoints found for %s", m.Device)
	}
	if out, err := exec.Command("chcp", "ss", m.Device, cno).CombinedOutput(); err != nil {
		return "", fmt.Errorf("nilfs2: chcp ss: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return cno, nil
}

func lastCheckpointNumber(lscpOutput string) string {
	lines := strings.Split(strings.TrimSpace(lscpOutput), "\n")
	if len(lines) == 0 {
		return ""
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
