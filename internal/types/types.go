// Package types holds the shared data model for the hoofbeat server: the
// scanned project tree, raw filesystem events as delivered by the watcher,
// and the reconciled change notifications that reach subscribers.
package types

import (
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MarkerPrefix is the basename prefix of the transient marker files the
// reconciliation engine drops into the project root. Everything that looks
// at basenames (scanner exclusions, event classification, the startup
// sweep) recognizes markers by this prefix.
const MarkerPrefix = ".hoofbeat-marker-"

// NodeKind distinguishes the two kinds of tracked filesystem nodes.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeDirectory
)

// String returns the string representation of the node kind.
func (k NodeKind) String() string {
	switch k {
	case NodeFile:
		return "file"
	case NodeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// FileNode is one entry in the project tree. Directories carry their
// children in directory-listing order; files have no children. Nodes are
// never mutated after the scan that built them completes.
type FileNode struct {
	// Name is the basename of the entry.
	Name string
	// Rel is the path relative to the project root, "." for the root itself.
	Rel string
	// Kind says whether this is a file or a directory.
	Kind NodeKind
	// Children holds the directory's entries, nil for files.
	Children []*FileNode
}

// ProjectTree is an immutable snapshot of the project root. A new scan
// produces a wholly new tree; readers never observe a partially built one.
type ProjectTree struct {
	// Root is the directory node for the project root.
	Root *FileNode
	// RootPath is the canonical absolute path of the project root.
	RootPath string
	// FileCount and DirCount summarize the snapshot for diagnostics.
	FileCount int
	DirCount  int
	// ScannedAt and ScanDuration record when and how long the scan ran.
	ScannedAt    time.Time
	ScanDuration time.Duration
}

// Walk visits every node in the tree depth-first, parents before children.
// Returning false from fn stops the walk.
func (t *ProjectTree) Walk(fn func(*FileNode) bool) {
	if t == nil || t.Root == nil {
		return
	}
	walk(t.Root, fn)
}

func walk(n *FileNode, fn func(*FileNode) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.Children {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// Files returns the relative paths of all tracked regular files.
func (t *ProjectTree) Files() []string {
	var files []string
	t.Walk(func(n *FileNode) bool {
		if n.Kind == NodeFile {
			files = append(files, n.Rel)
		}
		return true
	})
	return files
}

// Contains reports whether the tree tracks a node at the given relative
// path. The root itself ("." or "") is always contained.
func (t *ProjectTree) Contains(rel string) bool {
	rel = path.Clean(rel)
	if rel == "." || rel == "" {
		return t != nil && t.Root != nil
	}
	found := false
	t.Walk(func(n *FileNode) bool {
		if n.Rel == rel {
			found = true
			return false
		}
		return true
	})
	return found
}

// EventKind classifies a raw filesystem event.
type EventKind int

const (
	EventCreate EventKind = iota
	EventWrite
	EventRemove
	EventMove
	EventOther
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventMove:
		return "move"
	default:
		return "other"
	}
}

// RawEvent is one advisory event from the watcher. Ordering within the
// stream is the only guarantee: events may be coalesced, duplicated, or
// missing their counterpart (a move delivers only the half that happened
// inside the watched root).
type RawEvent struct {
	Path       string
	Kind       EventKind
	ObservedAt time.Time
}

// IsMarker reports whether the event concerns a reconciliation marker file.
func (e RawEvent) IsMarker() bool {
	base := filepath.Base(e.Path)
	return len(base) > len(MarkerPrefix) && strings.HasPrefix(base, MarkerPrefix)
}

// ChangeNotification is a reconciled, public-facing change event. It is
// created only for events that survived reconciliation: not fast-forward
// noise and not marker-file traffic.
type ChangeNotification struct {
	// Seq is assigned by the fan-out hub in production order.
	Seq uint64 `json:"seq"`
	// Kind is the string form of the underlying event kind.
	Kind string `json:"kind"`
	// Path is relative to the project root where possible, absolute
	// otherwise.
	Path string `json:"path"`
	// ObservedAt is when the watcher saw the underlying raw event.
	ObservedAt time.Time `json:"observed_at"`
}
