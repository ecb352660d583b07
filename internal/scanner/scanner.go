// Package scanner builds immutable project-tree snapshots from the
// filesystem. The scan fans out across subdirectories with bounded
// concurrency and joins all children before a parent completes; the first
// I/O error anywhere aborts the entire scan. A failed scan is surfaced,
// never silently degraded into a partial tree.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hoofbeat/hoofbeat/internal/errors"
	"github.com/hoofbeat/hoofbeat/internal/logging"
	"github.com/hoofbeat/hoofbeat/internal/types"
)

// defaultConcurrency bounds how many directory reads may be in flight at
// once, so adversarially deep or wide trees cannot explode goroutine and
// descriptor usage.
const defaultConcurrency = 16

// Scanner scans a project root into ProjectTree snapshots.
type Scanner struct {
	root    string
	exclude Exclusions
	sem     *semaphore.Weighted
	logger  logging.Logger
}

// New creates a scanner for the given project root. The root is
// canonicalized here and must exist and be a directory; every tree the
// scanner produces carries this canonical path.
func New(root string, exclude Exclusions, logger logging.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, errors.ScanError("resolve root", root, err)
	}
	canonical, err = filepath.Abs(canonical)
	if err != nil {
		return nil, errors.ScanError("resolve root", root, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, errors.ScanError("stat root", canonical, err)
	}
	if !info.IsDir() {
		return nil, errors.ScanError("stat root", canonical, os.ErrInvalid)
	}

	return &Scanner{
		root:    canonical,
		exclude: exclude,
		sem:     semaphore.NewWeighted(defaultConcurrency),
		logger:  logger.WithComponent("scanner"),
	}, nil
}

// Root returns the canonical project root path.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the project root and returns a fresh snapshot. Excluded
// basenames and symbolic links are skipped entirely: no recursion, no
// open, no node in the result. Because links are never traversed the
// resulting tree is acyclic and everything in it is a strict descendant
// of the root.
func (s *Scanner) Scan(ctx context.Context) (*types.ProjectTree, error) {
	start := time.Now()

	root, err := s.scanDir(ctx, s.root, ".")
	if err != nil {
		return nil, err
	}

	tree := &types.ProjectTree{
		Root:         root,
		RootPath:     s.root,
		ScannedAt:    start,
		ScanDuration: time.Since(start),
	}
	tree.Walk(func(n *types.FileNode) bool {
		switch n.Kind {
		case types.NodeFile:
			tree.FileCount++
		case types.NodeDirectory:
			tree.DirCount++
		}
		return true
	})

	s.logger.Info(ctx, "scan complete",
		"files", tree.FileCount,
		"dirs", tree.DirCount,
		"duration", tree.ScanDuration.String(),
	)
	return tree, nil
}

func (s *Scanner) scanDir(ctx context.Context, dir, rel string) (*types.FileNode, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.ScanError("read dir", dir, err)
	}
	entries, err := os.ReadDir(dir)
	s.sem.Release(1)
	if err != nil {
		return nil, errors.ScanError("read dir", dir, err)
	}

	node := &types.FileNode{
		Name:     filepath.Base(dir),
		Rel:      rel,
		Kind:     types.NodeDirectory,
		Children: make([]*types.FileNode, 0, len(entries)),
	}
	if rel == "." {
		node.Name = filepath.Base(s.root)
	}

	type pendingDir struct {
		index int
		path  string
		rel   string
	}
	var subdirs []pendingDir

	for _, entry := range entries {
		name := entry.Name()
		if s.exclude.Excluded(name) {
			s.logger.Debug(ctx, "skipping excluded entry", "name", name, "dir", dir)
			continue
		}

		mode := entry.Type()
		childRel := filepath.Join(rel, name)
		if rel == "." {
			childRel = name
		}

		switch {
		case mode&fs.ModeSymlink != 0:
			// Symlinks are skipped entirely, even when they point back
			// inside the project root. This keeps the containment claim
			// absolute: nothing outside the root is ever reachable
			// through the tree, and no cycle handling is needed.
			s.logger.Debug(ctx, "skipping symlink", "name", name, "dir", dir)
		case mode.IsDir():
			node.Children = append(node.Children, nil)
			subdirs = append(subdirs, pendingDir{
				index: len(node.Children) - 1,
				path:  filepath.Join(dir, name),
				rel:   childRel,
			})
		case mode.IsRegular():
			node.Children = append(node.Children, &types.FileNode{
				Name: name,
				Rel:  childRel,
				Kind: types.NodeFile,
			})
		default:
			// Sockets, fifos and devices are not project content.
			s.logger.Debug(ctx, "skipping irregular entry", "name", name, "dir", dir)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subdirs {
		sub := sub
		g.Go(func() error {
			child, err := s.scanDir(gctx, sub.path, sub.rel)
			if err != nil {
				return err
			}
			node.Children[sub.index] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// os.ReadDir sorts by name already; keep the guarantee explicit so
	// membership comparisons across scans stay deterministic.
	sort.Slice(node.Children, func(i, j int) bool {
		return node.Children[i].Name < node.Children[j].Name
	})

	return node, nil
}
