package restore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHardLinkGroupsPartitionsBySameInode(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "snap")
	require.NoError(t, os.MkdirAll(snap, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snap, "a.txt"), []byte("shared"), 0o644))
	require.NoError(t, os.Link(filepath.Join(snap, "a.txt"), filepath.Join(snap, "b.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(snap, "solo.txt"), []byte("alone"), 0o644))

	groups, err := HardLinkGroups(snap, []string{"a.txt", "b.txt", "solo.txt"})
	require.NoError(t, err)

	var linked []string
	for _, members := range groups {
		if len(members) >= 2 {
			linked = append(linked, members...)
		}
	}
	require.ElementsMatch(t, []string{"a.txt", "b.txt"}, linked)
}

func TestApplyWithHardLinksRelinksGroupMembers(t *testing.T) {
	dir := t.TempDir()
	snap := filepath.Join(dir, "snap")
	live := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(snap, 0o755))
	require.NoError(t, os.MkdirAll(live, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(snap, "a.txt"), []byte("shared"), 0o644))
	require.NoError(t, os.Link(filepath.Join(snap, "a.txt"), filepath.Join(snap, "b.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(snap, "solo.txt"), []byte("alone"), 0o644))

	changed := []string{"a.txt", "b.txt", "solo.txt"}
	groups, err := HardLinkGroups(snap, changed)
	require.NoError(t, err)

	require.NoError(t, ApplyWithHardLinks(snap, live, changed, groups, false, false))

	infoA, err := os.Stat(filepath.Join(live, "a.txt"))
	require.NoError(t, err)
	infoB, err := os.Stat(filepath.Join(live, "b.txt"))
	require.NoError(t, err)
	require.True(t, os.SameFile(infoA, infoB), "hard-linked snapshot members must remain hard-linked on the live tree")

	got, err := os.ReadFile(filepath.Join(live, "solo.txt"))
	require.NoError(t, err)
	require.Equal(t, "alone", string(got))
}
