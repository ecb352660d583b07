package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoofbeat/hoofbeat/internal/scanner"
	"github.com/hoofbeat/hoofbeat/internal/types"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// resolveRoot builds a canonical project root with a sibling directory
// whose name shares the root's name as a string prefix.
func resolveRoot(t *testing.T) (root, sibling string) {
	t.Helper()
	parent := t.TempDir()
	root = filepath.Join(parent, "project")
	sibling = filepath.Join(parent, "project-evil")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.MkdirAll(sibling, 0o755))

	canonical, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	return canonical, sibling
}

func TestResolveRegularFile(t *testing.T) {
	root, _ := resolveRoot(t)
	mustWrite(t, filepath.Join(root, "page.html"), "<html></html>")

	got, err := Resolve(root, scanner.DefaultExclusions(), "/page.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "page.html"), got)
}

func TestResolveNestedFile(t *testing.T) {
	root, _ := resolveRoot(t)
	mustWrite(t, filepath.Join(root, "assets", "app.js"), "js")

	got, err := Resolve(root, scanner.DefaultExclusions(), "/assets/app.js")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "assets", "app.js"), got)
}

func TestResolveMissingFile(t *testing.T) {
	root, _ := resolveRoot(t)

	_, err := Resolve(root, scanner.DefaultExclusions(), "/nope.html")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveDirectoryIndexPreference(t *testing.T) {
	root, _ := resolveRoot(t)
	mustWrite(t, filepath.Join(root, "index.htm"), "htm")
	mustWrite(t, filepath.Join(root, "index.html"), "html")

	got, err := Resolve(root, scanner.DefaultExclusions(), "/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "index.htm"), got)
}

func TestResolveDirectoryIndexFallback(t *testing.T) {
	root, _ := resolveRoot(t)
	mustWrite(t, filepath.Join(root, "docs", "index.html"), "html")

	got, err := Resolve(root, scanner.DefaultExclusions(), "/docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "index.html"), got)
}

func TestResolveDirectoryWithoutIndex(t *testing.T) {
	root, _ := resolveRoot(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	_, err := Resolve(root, scanner.DefaultExclusions(), "/empty")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRejectsTraversal(t *testing.T) {
	root, sibling := resolveRoot(t)
	mustWrite(t, filepath.Join(sibling, "secret.txt"), "secret")

	for _, p := range []string{
		"/../project-evil/secret.txt",
		"/../../etc/passwd",
		"/a/../../project-evil/secret.txt",
		"/..",
	} {
		_, err := Resolve(root, scanner.DefaultExclusions(), p)
		assert.ErrorIs(t, err, ErrNotFound, "path %q escaped the root", p)
	}
}

func TestResolveRejectsSiblingPrefixDirectory(t *testing.T) {
	// "/project" vs "/project-evil": a raw string-prefix containment check
	// would accept this; the component-wise check must not.
	root, sibling := resolveRoot(t)
	mustWrite(t, filepath.Join(sibling, "secret.txt"), "secret")

	_, err := Resolve(root, scanner.DefaultExclusions(), "/../project-evil/secret.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRejectsExcludedComponents(t *testing.T) {
	root, _ := resolveRoot(t)
	mustWrite(t, filepath.Join(root, ".git", "config"), "[core]")
	mustWrite(t, filepath.Join(root, ".htaccess"), "deny")
	mustWrite(t, filepath.Join(root, "sub", ".gitignore"), "*")

	for _, p := range []string{"/.git/config", "/.htaccess", "/sub/.gitignore", "/.git"} {
		_, err := Resolve(root, scanner.DefaultExclusions(), p)
		assert.ErrorIs(t, err, ErrNotFound, "excluded path %q was served", p)
	}
}

func TestResolveRejectsMarkerFiles(t *testing.T) {
	root, _ := resolveRoot(t)
	marker := types.MarkerPrefix + "cafe0123"
	mustWrite(t, filepath.Join(root, marker), "")

	_, err := Resolve(root, scanner.DefaultExclusions(), "/"+marker)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	root, sibling := resolveRoot(t)
	mustWrite(t, filepath.Join(sibling, "leak.txt"), "leak")
	require.NoError(t, os.Symlink(filepath.Join(sibling, "leak.txt"), filepath.Join(root, "inside.txt")))

	_, err := Resolve(root, scanner.DefaultExclusions(), "/inside.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAllowsInternalSymlink(t *testing.T) {
	root, _ := resolveRoot(t)
	mustWrite(t, filepath.Join(root, "real.txt"), "real")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "alias.txt")))

	got, err := Resolve(root, scanner.DefaultExclusions(), "/alias.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "real.txt"), got)
}

func TestContainedIn(t *testing.T) {
	assert.True(t, containedIn("/srv/project", "/srv/project"))
	assert.True(t, containedIn("/srv/project", "/srv/project/a/b.txt"))
	assert.False(t, containedIn("/srv/project", "/srv/project-evil/x"))
	assert.False(t, containedIn("/srv/project", "/srv"))
	assert.False(t, containedIn("/srv/project", "/etc/passwd"))
}
