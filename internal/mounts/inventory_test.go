package mounts

import (
	"testing"

	"github.com/armon/go-radix"
	"github.com/httm-go/httm/internal/httm"
	"github.com/stretchr/testify/require"
)

func newTestInventory() *Inventory {
	inv := &Inventory{
		byPoint: make(map[string]*MountEntry),
		trie:    radix.New(),
		log:     httm.Logger(),
	}
	for _, e := range []*MountEntry{
		{MountPoint: "/", Kind: Foreign},
		{MountPoint: "/home", Kind: ZFS},
		{MountPoint: "/home/user/data", Kind: BtrfsSnapper},
	} {
		inv.add(e)
	}
	return inv
}

func TestOwningMountLongestPrefix(t *testing.T) {
	inv := newTestInventory()

	entry, ok := inv.OwningMount("/home/user/data/file.txt")
	require.True(t, ok)
	require.Equal(t, "/home/user/data", entry.MountPoint)

	entry, ok = inv.OwningMount("/home/user/other.txt")
	require.True(t, ok)
	require.Equal(t, "/home", entry.MountPoint)

	entry, ok = inv.OwningMount("/etc/hosts")
	require.True(t, ok)
	require.Equal(t, "/", entry.MountPoint)
}

func TestOwningMountDoesNotMatchSiblingPrefix(t *testing.T) {
	inv := newTestInventory()

	// "/homework" shares a byte-prefix with "/home" but is not under it.
	entry, ok := inv.OwningMount("/homework/notes.txt")
	require.True(t, ok)
	require.Equal(t, "/", entry.MountPoint)
}

func TestIsFilterDir(t *testing.T) {
	inv := newTestInventory()
	inv.add(&MountEntry{MountPoint: "/home/user/.snapshots", FilterDir: true})

	require.True(t, inv.IsFilterDir("/home/user/.snapshots/1/snapshot"))
	require.False(t, inv.IsFilterDir("/home/user/data"))
}
