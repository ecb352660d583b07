// Package reconcile correlates the advisory raw event stream with scan
// results using the marker-file fast-forward protocol.
//
// The watcher is path-scoped and advisory; a move crossing the watch
// boundary yields only one of its two halves, so correlating the pieces is
// unreliable. Instead of correlating, the engine creates a uniquely named
// marker file inside the project root, rescans, and discards every event
// until the marker's own creation event appears in the stream. At that
// point the scan results and the stream are known to be aligned. Moves are
// rare relative to writes in the target workload, so the extra scan per
// move is cheap.
//
// The state machine itself is pure: Step and StepTimeout map
// (session, input) to (session, effects) with no I/O, timers, or
// goroutines, so the protocol is unit-testable with a synthetic clock and
// event sequence. The Engine owns the side effects.
package reconcile

import (
	"time"

	"github.com/hoofbeat/hoofbeat/internal/types"
)

// Timeout bounds for awaiting a marker-creation event. The timeout doubles
// on every retry and never exceeds MaxTimeout.
const (
	DefaultInitialTimeout = 5 * time.Second
	MaxTimeout            = 10 * time.Minute
)

// Phase enumerates the reconciliation session states.
type Phase int

const (
	// PhaseAwaitingMarker discards events until the current marker's
	// creation event is seen. Entered at startup after the initial scan.
	PhaseAwaitingMarker Phase = iota
	// PhaseSteadyState forwards real events as change notifications and
	// watches for moves.
	PhaseSteadyState
	// PhaseRescanningForMove behaves like PhaseAwaitingMarker but was
	// entered because a move forced a full rescan.
	PhaseRescanningForMove
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingMarker:
		return "awaiting-marker"
	case PhaseSteadyState:
		return "steady-state"
	case PhaseRescanningForMove:
		return "rescanning-for-move"
	default:
		return "unknown"
	}
}

// Session is the reconciliation state. At most one session is active at a
// time and it is exclusively owned by the engine's run loop.
type Session struct {
	// MarkerPath is the absolute path of the marker currently awaited,
	// empty in steady state.
	MarkerPath string
	// CreatedAt is when the current marker was created.
	CreatedAt time.Time
	// Timeout is how long to wait for the marker event before retrying.
	Timeout time.Duration
	// Base is the initial timeout a fresh wait cycle resets to.
	Base time.Duration
	// Retries counts timeouts in the current wait cycle.
	Retries int
	// Phase is the current state.
	Phase Phase
}

// NewSession starts a session awaiting its first marker.
func NewSession(markerPath string, base time.Duration, now time.Time) Session {
	if base <= 0 {
		base = DefaultInitialTimeout
	}
	return Session{
		MarkerPath: markerPath,
		CreatedAt:  now,
		Timeout:    base,
		Base:       base,
		Phase:      PhaseAwaitingMarker,
	}
}

// Waiting reports whether the session is discarding events until a marker
// creation shows up.
func (s Session) Waiting() bool {
	return s.Phase == PhaseAwaitingMarker || s.Phase == PhaseRescanningForMove
}

// EffectKind enumerates the side effects a transition requests.
type EffectKind int

const (
	// EffectDiscard drops the event as fast-forward noise.
	EffectDiscard EffectKind = iota
	// EffectDeleteMarker removes the marker file at Effect.Marker.
	EffectDeleteMarker
	// EffectCreateMarker creates an empty marker file at Effect.Marker.
	EffectCreateMarker
	// EffectTriggerRescan requests a full rescan of the project root.
	EffectTriggerRescan
	// EffectEmit publishes Effect.Event as a change notification.
	EffectEmit
)

// Effect is one side effect requested by a transition, executed by the
// engine in slice order.
type Effect struct {
	Kind   EffectKind
	Marker string
	Event  types.RawEvent
}

// Step advances the session with one raw event. nextMarker is a fresh
// candidate marker path supplied by the caller; it is used only when the
// transition starts a new wait cycle. now is the caller's clock reading.
func Step(s Session, ev types.RawEvent, nextMarker string, now time.Time) (Session, []Effect) {
	switch s.Phase {
	case PhaseAwaitingMarker, PhaseRescanningForMove:
		if ev.Kind == types.EventCreate && ev.Path == s.MarkerPath {
			marker := s.MarkerPath
			s.Phase = PhaseSteadyState
			s.MarkerPath = ""
			s.Retries = 0
			s.Timeout = s.Base
			return s, []Effect{{Kind: EffectDeleteMarker, Marker: marker}}
		}
		// Anything else is presumed noise from the scan or from events
		// queued before the marker: fast-forward past it.
		return s, []Effect{{Kind: EffectDiscard, Event: ev}}

	case PhaseSteadyState:
		if ev.Kind == types.EventMove {
			s.Phase = PhaseRescanningForMove
			s.MarkerPath = nextMarker
			s.CreatedAt = now
			s.Retries = 0
			s.Timeout = s.Base
			return s, []Effect{
				{Kind: EffectCreateMarker, Marker: nextMarker},
				{Kind: EffectTriggerRescan},
			}
		}
		if ev.IsMarker() {
			// Residual traffic about our own marker files (the delete
			// after a fast-forward, a leftover from a timed-out cycle)
			// is not a user change.
			return s, []Effect{{Kind: EffectDiscard, Event: ev}}
		}
		return s, []Effect{{Kind: EffectEmit, Event: ev}}
	}

	return s, []Effect{{Kind: EffectDiscard, Event: ev}}
}

// StepTimeout advances the session when no marker event arrived in time.
// A new marker is created, the old one is removed so only one transient
// marker exists at a time, the retry counter increments, and the timeout
// doubles up to MaxTimeout. In steady state no timer is armed and the call
// is a no-op.
func StepTimeout(s Session, nextMarker string, now time.Time) (Session, []Effect) {
	if !s.Waiting() {
		return s, nil
	}

	effects := make([]Effect, 0, 3)
	if s.MarkerPath != "" {
		effects = append(effects, Effect{Kind: EffectDeleteMarker, Marker: s.MarkerPath})
	}
	effects = append(effects, Effect{Kind: EffectCreateMarker, Marker: nextMarker})
	if s.Phase == PhaseRescanningForMove {
		// The rescan that entered this phase may have failed; retry it
		// anchored to the fresh marker.
		effects = append(effects, Effect{Kind: EffectTriggerRescan})
	}

	s.MarkerPath = nextMarker
	s.CreatedAt = now
	s.Retries++
	s.Timeout *= 2
	if s.Timeout > MaxTimeout {
		s.Timeout = MaxTimeout
	}
	return s, effects
}
