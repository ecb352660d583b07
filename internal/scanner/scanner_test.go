package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoofbeat/hoofbeat/internal/types"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
}

func newTestScanner(t *testing.T, root string) *Scanner {
	t.Helper()
	sc, err := New(root, DefaultExclusions(), nil)
	require.NoError(t, err)
	return sc
}

// treePairs flattens a tree into (relative path, kind) pairs for
// membership comparison across scans.
func treePairs(tree *types.ProjectTree) map[string]types.NodeKind {
	pairs := make(map[string]types.NodeKind)
	tree.Walk(func(n *types.FileNode) bool {
		pairs[n.Rel] = n.Kind
		return true
	})
	return pairs
}

func TestScanSimpleProject(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "readme.txt"))
	writeFile(t, filepath.Join(root, ".git", "config"))

	tree, err := newTestScanner(t, root).Scan(context.Background())
	require.NoError(t, err)

	files := tree.Files()
	assert.Equal(t, []string{"readme.txt"}, files)
	assert.Equal(t, 1, tree.FileCount)
	assert.Equal(t, 1, tree.DirCount) // root only; .git is entirely absent

	tree.Walk(func(n *types.FileNode) bool {
		assert.NotEqual(t, ".git", n.Name)
		return true
	})
}

func TestScanExcludedNamesAtAnyDepth(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "b", ".DS_Store"))
	writeFile(t, filepath.Join(root, "a", ".gitignore"))
	writeFile(t, filepath.Join(root, ".htaccess"))
	writeFile(t, filepath.Join(root, "a", "b", "c", ".git", "HEAD"))
	writeFile(t, filepath.Join(root, "a", "b", "keep.txt"))

	tree, err := newTestScanner(t, root).Scan(context.Background())
	require.NoError(t, err)

	excluded := DefaultExclusions()
	tree.Walk(func(n *types.FileNode) bool {
		assert.False(t, excluded.Excluded(n.Name), "tree contains excluded node %q", n.Rel)
		return true
	})
	assert.Equal(t, []string{filepath.Join("a", "b", "keep.txt")}, tree.Files())
}

func TestScanSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.txt"))
	writeFile(t, filepath.Join(root, "real.txt"))

	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "link-to-file")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link-to-dir")))
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))

	tree, err := newTestScanner(t, root).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"real.txt"}, tree.Files())
	for _, name := range []string{"link-to-file", "link-to-dir", "dangling"} {
		assert.False(t, tree.Contains(name), "tree contains symlink %q", name)
	}
}

func TestScanSkipsMarkerFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, types.MarkerPrefix+"deadbeef"))
	writeFile(t, filepath.Join(root, "kept.txt"))

	tree, err := newTestScanner(t, root).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kept.txt"}, tree.Files())
}

func TestScanIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "one.txt"))
	writeFile(t, filepath.Join(root, "a", "two.txt"))
	writeFile(t, filepath.Join(root, "b", "c", "three.txt"))

	sc := newTestScanner(t, root)
	first, err := sc.Scan(context.Background())
	require.NoError(t, err)
	second, err := sc.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, treePairs(first), treePairs(second))
}

func TestScanDeterministicChildOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		writeFile(t, filepath.Join(root, name))
	}

	tree, err := newTestScanner(t, root).Scan(context.Background())
	require.NoError(t, err)

	var names []string
	for _, c := range tree.Root.Children {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestScanCountsNodes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "one.txt"))
	writeFile(t, filepath.Join(root, "b", "two.txt"))

	tree, err := newTestScanner(t, root).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tree.FileCount)
	assert.Equal(t, 3, tree.DirCount) // root, a, b
	assert.NotZero(t, tree.ScannedAt)
}

func TestNewRejectsMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), DefaultExclusions(), nil)
	assert.Error(t, err)
}

func TestNewRejectsFileRoot(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "plain.txt")
	writeFile(t, file)

	_, err := New(file, DefaultExclusions(), nil)
	assert.Error(t, err)
}

func TestNewCanonicalizesRoot(t *testing.T) {
	real := t.TempDir()
	link := filepath.Join(t.TempDir(), "alias")
	require.NoError(t, os.Symlink(real, link))

	sc, err := New(link, DefaultExclusions(), nil)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(real)
	require.NoError(t, err)
	assert.Equal(t, resolved, sc.Root())
}

func TestScanCanceledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "file.txt"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScanner(t, root).Scan(ctx)
	assert.Error(t, err)
}
