package mounts

// Kind classifies a mounted filesystem by snapshot scheme (spec.md §3).
type Kind int

const (
	Foreign Kind = iota
	ZFS
	BtrfsSnapper
	BtrfsNative
	NILFS2
	APFSTimeMachine
	ResticFUSE
)

func (k Kind) String() string {
	switch k {
	case ZFS:
		return "zfs"
	case BtrfsSnapper:
		return "btrfs-snapper"
	case BtrfsNative:
		return "btrfs-native"
	case NILFS2:
		return "nilfs2"
	case APFSTimeMachine:
		return "apfs-timemachine"
	case ResticFUSE:
		return "restic-fuse"
	default:
		return "foreign"
	}
}

// SnapshotCapable reports whether a Kind can host discoverable historical
// versions at all (Foreign mounts only qualify via an explicit alias,
// spec.md §4.A).
func (k Kind) SnapshotCapable() bool { return k != Foreign }

// Privileged reports whether enumerating this Kind's snapshot roots may
// require elevated privileges (spec.md §4.B).
func (k Kind) Privileged() bool {
	return k == BtrfsSnapper || k == NILFS2
}

// MountEntry represents one mounted filesystem (spec.md §3).
type MountEntry struct {
	MountPoint string
	Device     string // device or dataset identifier
	FSType     string // raw filesystem type string from the kernel
	Kind       Kind

	// ParentPool is the parent-pool/dataset identifier, if any (e.g. a ZFS
	// pool name for a child dataset).
	ParentPool string

	// FilterDir marks a mount point that is itself snapshot-internal (e.g.
	// a bind-mounted .snapshots subvolume) and must never be treated as a
	// live root for candidate resolution — ported from the original's
	// FilterDirs (filesystem/mounts.rs), see SPEC_FULL.md §12.4.
	FilterDir bool
}
