// hardlinks.go implements SPEC_FULL.md §12's supplemented
// feature 1: when replaying a roll-forward diff onto the live tree, files
// that are hard-linked within the snapshot are relinked rather than
// duplicated, so the live tree's link count is preserved.
//
// Grounded on the original's roll_forward/preserve_hard_links.rs, which
// groups changed paths by (device, inode) before replay and relinks every
// member of a group to the first one actually copied.
package restore

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// HardLinkGroups partitions changed snapshot paths by (device, inode) so
// RollForward's apply step can copy the first member of each group and
// os.Link the rest, preserving the snapshot's link count on the live
// tree.
func HardLinkGroups(snapshotRoot string, changed []string) (map[[2]uint64][]string, error) {
	groups := make(map[[2]uint64][]string)
	for _, rel := range changed {
		full := filepath.Join(snapshotRoot, rel)
		info, err := os.Lstat(full)
		if err != nil {
			continue // dropped like any other transient stat miss (§7)
		}
		if info.Mode()&os.ModeSymlink != 0 || info.IsDir() {
			continue // only regular files participate in hard-link groups
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok || stat.Nlink < 2 {
			continue
		}
		key := [2]uint64{uint64(stat.Dev), stat.Ino}
		groups[key] = append(groups[key], rel)
	}
	return groups, nil
}

// ApplyWithHardLinks copies changed into liveRoot, replaying each
// hard-link group as one real copy followed by os.Link calls for the
// remaining members, falling back to an independent copy for anything not
// in a group.
func ApplyWithHardLinks(snapshotRoot, liveRoot string, changed []string, groups map[[2]uint64][]string, preserveXattrs, preserveACLs bool) error {
	done := make(map[string]bool, len(changed))

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		first := members[0]
		srcFirst := filepath.Join(snapshotRoot, first)
		dstFirst := filepath.Join(liveRoot, first)
		if err := os.MkdirAll(filepath.Dir(dstFirst), 0o755); err != nil {
			return fmt.Errorf("restore: mkdir for hard-link group: %w", err)
		}
		if err := copyTree(srcFirst, dstFirst, preserveXattrs, preserveACLs); err != nil {
			return err
		}
		done[first] = true

		for _, rel := range members[1:] {
			dst := filepath.Join(liveRoot, rel)
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("restore: mkdir for hard-link member: %w", err)
			}
			_ = os.Remove(dst)
			if err := os.Link(dstFirst, dst); err != nil {
				// Cross-device or unsupported: fall back to an
				// independent copy rather than failing the whole
				// roll-forward.
				if err := copyTree(filepath.Join(snapshotRoot, rel), dst, preserveXattrs, preserveACLs); err != nil {
					return err
				}
			}
			done[rel] = true
		}
	}

	for _, rel := range changed {
		if done[rel] {
			continue
		}
		src := filepath.Join(snapshotRoot, rel)
		dst := filepath.Join(liveRoot, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("restore: mkdir for %s: %w", rel, err)
		}
		if err := copyTree(src, dst, preserveXattrs, preserveACLs); err != nil {
			return err
		}
	}
	return nil
}
