package fsys

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/arturoeanton/repolens/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mkRepo fakes a repository by creating a .git directory.
func mkRepo(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(path, ".git"), 0o755))
}

func paths(t *testing.T, root string, depth int) []string {
	t.Helper()
	repos, err := NewDiscoverer().Discover(context.Background(), root, depth)
	require.NoError(t, err)
	out := make([]string, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.RelativePath)
	}
	sort.Strings(out)
	return out
}

func TestDiscover_DepthLimit(t *testing.T) {
	root := t.TempDir()
	mkRepo(t, filepath.Join(root, "a"))
	mkRepo(t, filepath.Join(root, "group", "b"))
	mkRepo(t, filepath.Join(root, "group", "deep", "c"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))

	tests := []struct {
		depth int
		want  []string
	}{
		{0, []string{}},
		{1, []string{"a"}},
		{2, []string{"a", "group/b"}},
		{3, []string{"a", "group/b", "group/deep/c"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, paths(t, root, tt.depth), "depth %d", tt.depth)
	}
}

func TestDiscover_RootIsRepository(t *testing.T) {
	root := t.TempDir()
	mkRepo(t, root)
	mkRepo(t, filepath.Join(root, "vendor", "nested"))

	repos, err := NewDiscoverer().Discover(context.Background(), root, 2)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, ".", repos[0].RelativePath)
	assert.Equal(t, filepath.Base(root), repos[0].Name)
	assert.Empty(t, repos[0].ID)
}

func TestDiscover_LeafRepositories(t *testing.T) {
	root := t.TempDir()
	mkRepo(t, filepath.Join(root, "outer"))
	mkRepo(t, filepath.Join(root, "outer", "inner"))
	mkRepo(t, filepath.Join(root, "outer", "pkg", "nested"))

	got := paths(t, root, 5)
	assert.Equal(t, []string{"outer"}, got)
}

func TestDiscover_GitFileMarker(t *testing.T) {
	root := t.TempDir()
	wt := filepath.Join(root, "worktree")
	require.NoError(t, os.MkdirAll(wt, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: /elsewhere\n"), 0o644))

	assert.Equal(t, []string{"worktree"}, paths(t, root, 2))
}

func TestDiscover_Idempotent(t *testing.T) {
	root := t.TempDir()
	mkRepo(t, filepath.Join(root, "one"))
	mkRepo(t, filepath.Join(root, "x", "two"))

	first := paths(t, root, 2)
	second := paths(t, root, 2)
	assert.Equal(t, first, second)
}

func TestDiscover_EmptyRoot(t *testing.T) {
	repos, err := NewDiscoverer().Discover(context.Background(), t.TempDir(), 2)
	require.NoError(t, err)
	assert.Empty(t, repos)
	assert.NotNil(t, repos)
}

func TestDiscover_Errors(t *testing.T) {
	root := t.TempDir()
	_, err := NewDiscoverer().Discover(context.Background(), filepath.Join(root, "missing"), 2)
	assert.ErrorIs(t, err, port.ErrNotFound)

	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewDiscoverer().Discover(context.Background(), file, 2)
	assert.ErrorIs(t, err, port.ErrValidation)
}

func TestDiscover_SymlinkLoop(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	mkRepo(t, filepath.Join(root, "loop", "repo"))
	require.NoError(t, os.Symlink(root, filepath.Join(root, "loop", "back")))
	require.NoError(t, os.Symlink(filepath.Join(root, "loop"), filepath.Join(root, "zz-alias")))

	got := paths(t, root, 10)
	assert.Equal(t, []string{"loop/repo"}, got)
}

func TestDiscover_PermissionDeniedSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}
	root := t.TempDir()
	mkRepo(t, filepath.Join(root, "ok"))
	locked := filepath.Join(root, "locked")
	mkRepo(t, filepath.Join(locked, "hidden"))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	assert.Equal(t, []string{"ok"}, paths(t, root, 2))
}

func TestBrowse(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "zeta"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Alpha"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("hello"), 0o644))

	listing, err := Browse(root)
	require.NoError(t, err)
	assert.Equal(t, root, listing.CurrentDir)
	assert.Equal(t, filepath.Dir(root), listing.ParentDir)
	require.Len(t, listing.Contents, 3)

	assert.Equal(t, "Alpha", listing.Contents[0].Name)
	assert.Equal(t, TypeDirectory, listing.Contents[0].Type)
	assert.Equal(t, "zeta", listing.Contents[1].Name)
	assert.Equal(t, "b.txt", listing.Contents[2].Name)
	assert.Equal(t, TypeFile, listing.Contents[2].Type)
	assert.Equal(t, int64(5), listing.Contents[2].Size)
	assert.NotZero(t, listing.Contents[2].Modified)

	_, err = Browse(filepath.Join(root, "nope"))
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/projects")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "projects"), got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Equal(t, home, got)
}
