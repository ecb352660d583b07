package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/hoofbeat/hoofbeat/internal/scanner"
)

// ErrNotFound is returned by Resolve for every unservable path: missing
// files, traversal attempts, excluded names, and symlink escapes alike.
// Callers answer 404 without distinguishing the cases, so a probe learns
// nothing about why a path was refused.
var ErrNotFound = errors.New("not found")

// indexCandidates are tried in order when a request resolves to a
// directory. Directory listings are out of scope: neither present means
// not found.
var indexCandidates = []string{"index.htm", "index.html"}

// Resolve maps a request path to a file under root, or ErrNotFound.
//
// The joined path is canonicalized against the real filesystem, then
// checked for path-component-prefix containment: "/project" must not
// match "/project-evil", so the comparison is by directory component,
// never by raw string prefix. Canonicalization happens before the check,
// which means symlinks inside the tree that point outside it are refused
// too.
func Resolve(root string, exclude scanner.Exclusions, requestPath string) (string, error) {
	trimmed := strings.TrimLeft(requestPath, "/")

	// Excluded basenames are unreachable through the server even though
	// the router reads the live filesystem rather than the scanned tree.
	for _, part := range strings.Split(trimmed, "/") {
		if part != "" && exclude.Excluded(part) {
			return "", ErrNotFound
		}
	}

	joined := root
	if trimmed != "" {
		joined = filepath.Join(root, filepath.FromSlash(trimmed))
	}

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", ErrNotFound
	}
	if !containedIn(root, canonical) {
		return "", ErrNotFound
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", ErrNotFound
	}

	if info.IsDir() {
		for _, name := range indexCandidates {
			candidate := filepath.Join(canonical, name)
			if fi, err := os.Stat(candidate); err == nil && fi.Mode().IsRegular() {
				return candidate, nil
			}
		}
		return "", ErrNotFound
	}

	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return canonical, nil
}

// containedIn reports whether p equals root or is a strict descendant of
// it, comparing path components rather than raw strings.
func containedIn(root, p string) bool {
	if p == root {
		return true
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
