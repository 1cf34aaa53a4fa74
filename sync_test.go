package usftp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSyncPlannerSkipsUnchangedSeenFiles(t *testing.T) {
	seen := map[string]SyncEntry{
		"/dir/a.txt": {Dir: "/dir", Entry: DirEntry{Filename: "a.txt", Attribs: Attrib{Flags: attrPermissions | attrSize, Permissions: uint32(ModeRegular), Size: 10}}},
	}
	p := NewSyncPlanner(seen, nil)

	changed := p.Consider("/dir", DirEntry{Filename: "a.txt", Attribs: Attrib{Flags: attrPermissions | attrSize, Permissions: uint32(ModeRegular), Size: 10}})
	require.False(t, changed)

	changed = p.Consider("/dir", DirEntry{Filename: "a.txt", Attribs: Attrib{Flags: attrPermissions | attrSize, Permissions: uint32(ModeRegular), Size: 99}})
	require.True(t, changed)

	require.Len(t, p.Planned(), 1)
	require.Equal(t, "a.txt", p.Planned()[0].Entry.Filename)
}

func TestSyncPlannerHonorsExclude(t *testing.T) {
	p := NewSyncPlanner(nil, []string{"/dir/skip.txt"})

	require.False(t, p.Consider("/dir", DirEntry{Filename: "skip.txt"}))
	require.True(t, p.Consider("/dir", DirEntry{Filename: "keep.txt"}))
}

func TestSyncEntryPath(t *testing.T) {
	se := SyncEntry{Dir: "/a/b", Entry: DirEntry{Filename: "c.txt"}}
	require.Equal(t, "/a/b/c.txt", se.Path())
}
