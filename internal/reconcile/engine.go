package reconcile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hoofbeat/hoofbeat/internal/errors"
	"github.com/hoofbeat/hoofbeat/internal/logging"
	"github.com/hoofbeat/hoofbeat/internal/notify"
	"github.com/hoofbeat/hoofbeat/internal/scanner"
	"github.com/hoofbeat/hoofbeat/internal/types"
	"github.com/hoofbeat/hoofbeat/internal/watcher"
)

// Engine owns the reconciliation session and the current project tree. It
// is the tree's sole writer: every rescan builds a wholly new snapshot and
// replaces the old one by atomic swap, so readers never observe a
// half-built tree. The blocking receive loop runs on its own goroutine via
// Run.
type Engine struct {
	root    string
	watcher watcher.Watcher
	scanner *scanner.Scanner
	hub     *notify.Hub
	logger  logging.Logger

	tree    atomic.Pointer[types.ProjectTree]
	phase   atomic.Int32
	base    time.Duration
	session Session
}

// NewEngine wires the engine to its collaborators. baseTimeout is the
// initial marker wait; zero selects DefaultInitialTimeout.
func NewEngine(w watcher.Watcher, sc *scanner.Scanner, hub *notify.Hub, baseTimeout time.Duration, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	if baseTimeout <= 0 {
		baseTimeout = DefaultInitialTimeout
	}
	return &Engine{
		root:    sc.Root(),
		watcher: w,
		scanner: sc,
		hub:     hub,
		logger:  logger.WithComponent("reconcile"),
		base:    baseTimeout,
	}
}

// Tree returns the current project-tree snapshot. Nil before Start.
func (e *Engine) Tree() *types.ProjectTree {
	return e.tree.Load()
}

// Phase returns the current session phase. Safe to call from any
// goroutine; intended for diagnostics.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// setSession installs the new session state and mirrors its phase into
// the atomic that Phase reads. Only the run loop (and Start, before the
// run loop exists) may call this.
func (e *Engine) setSession(s Session) {
	e.session = s
	e.phase.Store(int32(s.Phase))
}

// SweepStaleMarkers removes marker files left behind by an interrupted
// earlier run. Called once before the initial scan; markers use a
// recognizable name prefix exactly so this sweep is possible.
func (e *Engine) SweepStaleMarkers(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return 0, errors.ScanError("sweep markers", e.root, err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), types.MarkerPrefix) {
			continue
		}
		path := filepath.Join(e.root, entry.Name())
		if err := os.Remove(path); err != nil {
			e.logger.Warn(ctx, err, "failed to remove stale marker", "path", path)
			continue
		}
		removed++
	}
	if removed > 0 {
		e.logger.Info(ctx, "swept stale markers", "count", removed)
	}
	return removed, nil
}

// Start performs the startup sequence: sweep stale markers, run the
// initial scan, and create the first marker. The caller must have the
// watcher observing (Ready plus the grace delay) before calling Start, or
// the marker's creation event will be missed forever. Scan and
// marker-creation failures here are startup-fatal.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.SweepStaleMarkers(ctx); err != nil {
		return err
	}

	tree, err := e.scanner.Scan(ctx)
	if err != nil {
		return err
	}
	e.tree.Store(tree)

	marker, err := e.createMarker()
	if err != nil {
		return err
	}
	e.setSession(NewSession(marker, e.base, time.Now()))
	e.logger.Info(ctx, "reconciliation started", "marker", filepath.Base(marker), "timeout", e.session.Timeout.String())
	return nil
}

// Run consumes the raw event stream until ctx is done. It must be called
// after Start, on a dedicated goroutine: the receive is blocking and must
// not stall anything else.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(e.markerDeadline())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.cleanup()
			return

		case ev, ok := <-e.watcher.Events():
			if !ok {
				e.cleanup()
				return
			}
			next, effects := Step(e.session, ev, e.markerCandidate(), time.Now())
			e.setSession(next)
			e.apply(ctx, effects)
			e.rearm(timer)

		case err, ok := <-e.watcher.Errors():
			if !ok {
				e.cleanup()
				return
			}
			e.logger.Warn(ctx, err, "watcher reported error")

		case <-timer.C:
			next, effects := StepTimeout(e.session, e.markerCandidate(), time.Now())
			if next.Retries != e.session.Retries {
				e.logger.Warn(ctx, nil, "marker event not observed in time",
					"retries", next.Retries, "next_timeout", next.Timeout.String())
			}
			e.setSession(next)
			e.apply(ctx, effects)
			e.rearm(timer)
		}
	}
}

// rearm resets the wait timer to match the session: while waiting for a
// marker it is armed with the time left until the wait expires, anchored
// to the marker's creation, so a steady stream of unrelated events cannot
// postpone the retry deadline indefinitely. Parked in steady state.
func (e *Engine) rearm(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if e.session.Waiting() {
		timer.Reset(e.markerDeadline())
	}
}

// markerDeadline is the time remaining in the current marker wait. Zero
// once the deadline has passed, which fires the timer immediately.
func (e *Engine) markerDeadline() time.Duration {
	remaining := time.Until(e.session.CreatedAt.Add(e.session.Timeout))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// apply executes transition effects in order.
func (e *Engine) apply(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		switch effect.Kind {
		case EffectDiscard:
			e.logger.Debug(ctx, "fast-forwarding past event",
				"path", effect.Event.Path, "kind", effect.Event.Kind.String())

		case EffectDeleteMarker:
			if err := os.Remove(effect.Marker); err != nil && !os.IsNotExist(err) {
				e.logger.Warn(ctx, err, "failed to delete marker", "path", effect.Marker)
			}

		case EffectCreateMarker:
			if err := os.WriteFile(effect.Marker, nil, 0o644); err != nil {
				// The next timeout retries with a fresh marker.
				e.logger.Error(ctx, err, "failed to create marker", "path", effect.Marker)
			}

		case EffectTriggerRescan:
			tree, err := e.scanner.Scan(ctx)
			if err != nil {
				// Stay in the rescanning phase; the timeout path retries.
				e.logger.Error(ctx, err, "rescan failed")
				continue
			}
			e.tree.Store(tree)

		case EffectEmit:
			n := e.hub.Publish(types.ChangeNotification{
				Kind:       effect.Event.Kind.String(),
				Path:       e.relPath(effect.Event.Path),
				ObservedAt: effect.Event.ObservedAt,
			})
			e.logger.Debug(ctx, "change notification published",
				"seq", n.Seq, "kind", n.Kind, "path", n.Path)
		}
	}
}

// cleanup removes the in-flight marker so a clean shutdown leaves nothing
// behind. An interrupted process still leaks one; the startup sweep covers
// that case.
func (e *Engine) cleanup() {
	if e.session.MarkerPath == "" {
		return
	}
	if err := os.Remove(e.session.MarkerPath); err != nil && !os.IsNotExist(err) {
		e.logger.Warn(context.Background(), err, "failed to remove marker on shutdown",
			"path", e.session.MarkerPath)
	}
}

// relPath rewrites an absolute event path relative to the project root.
// Paths outside the root (or otherwise unrelatable) pass through as-is.
func (e *Engine) relPath(path string) string {
	rel, err := filepath.Rel(e.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// markerCandidate returns a fresh uniquely named marker path inside the
// project root. The name is generated eagerly because the pure transition
// functions cannot.
func (e *Engine) markerCandidate() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// Fall back to the clock; uniqueness within one root is all that
		// matters here.
		return filepath.Join(e.root, types.MarkerPrefix+time.Now().Format("20060102150405.000000000"))
	}
	return filepath.Join(e.root, types.MarkerPrefix+hex.EncodeToString(buf[:]))
}

// createMarker writes an empty, uniquely named marker file in the root.
func (e *Engine) createMarker() (string, error) {
	path := e.markerCandidate()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return "", errors.InternalError("create marker file", err)
	}
	return path, nil
}
