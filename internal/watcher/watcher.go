// Package watcher wraps the native filesystem-notification facility behind
// a small capability interface. The native stream is advisory: events may
// be coalesced or incomplete, and a move across the watch boundary delivers
// only the half that happened inside the watched root. Consumers that need
// an accurate picture must reconcile against rescans; this package only
// promises delivery order.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hoofbeat/hoofbeat/internal/errors"
	"github.com/hoofbeat/hoofbeat/internal/logging"
	"github.com/hoofbeat/hoofbeat/internal/scanner"
	"github.com/hoofbeat/hoofbeat/internal/types"
)

// ReadyGraceDelay is how long callers should wait after Ready before
// relying on the watch being active. The native facility exposes no
// explicit "now observing" signal, so the delay is a best-effort
// confidence margin, not a guarantee.
const ReadyGraceDelay = 150 * time.Millisecond

// eventBuffer sizes the outgoing event channel. The reconciliation engine
// drains quickly; the buffer just absorbs bursts while it is mid-rescan.
const eventBuffer = 256

// Watcher is the capability interface over a path-scoped change
// notification source. Events arrive in delivery order on a single
// channel; Ready closes once the source is registered on the watched root.
type Watcher interface {
	Events() <-chan types.RawEvent
	Errors() <-chan error
	Ready() <-chan struct{}
	Close() error
}

// FSNotify adapts fsnotify to the Watcher interface. It registers the
// project root and every non-excluded subdirectory, keeps the watch set
// current as directories appear, and runs the blocking drain loop on a
// dedicated goroutine.
type FSNotify struct {
	fsw     *fsnotify.Watcher
	root    string
	exclude scanner.Exclusions
	logger  logging.Logger

	events chan types.RawEvent
	errs   chan error
	ready  chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

var _ Watcher = (*FSNotify)(nil)

// NewFSNotify starts watching root. Registration of the root and its
// subdirectories happens before Ready closes, so a caller that waits for
// Ready (plus ReadyGraceDelay) can create a marker file knowing its
// creation event will be observed.
func NewFSNotify(root string, exclude scanner.Exclusions, logger logging.Logger) (*FSNotify, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WatchError("create watcher", root, err)
	}

	w := &FSNotify{
		fsw:     fsw,
		root:    root,
		exclude: exclude,
		logger:  logger.WithComponent("watcher"),
		events:  make(chan types.RawEvent, eventBuffer),
		errs:    make(chan error, 1),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	close(w.ready)

	return w, nil
}

// Events returns the ordered raw event stream.
func (w *FSNotify) Events() <-chan types.RawEvent {
	return w.events
}

// Errors returns watch-level errors. These are advisory too; the watcher
// keeps running after reporting one.
func (w *FSNotify) Errors() <-chan error {
	return w.errs
}

// Ready closes once the watch set covers the project root.
func (w *FSNotify) Ready() <-chan struct{} {
	return w.ready
}

// Close stops the watcher and releases the native resources.
func (w *FSNotify) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

// addRecursive registers dir and all its non-excluded subdirectories.
// fsnotify watches are not recursive, so every directory needs its own
// registration. Subdirectories that vanish between listing and
// registration are skipped; the root itself must register.
func (w *FSNotify) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return errors.WatchError("watch root", path, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.exclude.Excluded(d.Name()) {
			return filepath.SkipDir
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			if path == dir {
				return errors.WatchError("watch root", path, err)
			}
			w.logger.Warn(context.Background(), err, "failed to watch subdirectory", "path", path)
		}
		return nil
	})
}

// run drains the native event stream, maps it to RawEvents, and extends
// the watch set when new directories appear.
func (w *FSNotify) run() {
	ctx := context.Background()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			raw := types.RawEvent{
				Path:       ev.Name,
				Kind:       mapOp(ev.Op),
				ObservedAt: time.Now(),
			}

			// A freshly created directory needs its own registration or
			// changes beneath it go unseen. Marker files are plain files,
			// so this never touches them.
			if raw.Kind == types.EventCreate {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() &&
					!w.exclude.Excluded(filepath.Base(ev.Name)) {
					if err := w.fsw.Add(ev.Name); err != nil {
						w.logger.Warn(ctx, err, "failed to watch new directory", "path", ev.Name)
					}
				}
			}

			select {
			case w.events <- raw:
			case <-w.done:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "watch error")
			select {
			case w.errs <- err:
			default:
			}
		}
	}
}

// mapOp translates fsnotify operations into the event taxonomy. Rename is
// the move case: the native stream delivers at most one half of a move, so
// the reconciler treats it as a trigger for a full rescan rather than
// trying to correlate the pieces.
func mapOp(op fsnotify.Op) types.EventKind {
	switch {
	case op.Has(fsnotify.Create):
		return types.EventCreate
	case op.Has(fsnotify.Write):
		return types.EventWrite
	case op.Has(fsnotify.Remove):
		return types.EventRemove
	case op.Has(fsnotify.Rename):
		return types.EventMove
	default:
		return types.EventOther
	}
}
