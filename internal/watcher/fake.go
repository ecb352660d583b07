package watcher

import (
	"sync"

	"github.com/hoofbeat/hoofbeat/internal/types"
)

// Fake is a deterministic in-memory Watcher for tests. Events are pushed
// by hand in the exact order the test wants them observed; no filesystem
// is involved.
type Fake struct {
	events chan types.RawEvent
	errs   chan error
	ready  chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

var _ Watcher = (*Fake)(nil)

// NewFake creates a fake watcher that is immediately ready.
func NewFake() *Fake {
	f := &Fake{
		events: make(chan types.RawEvent, eventBuffer),
		errs:   make(chan error, 1),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	close(f.ready)
	return f
}

// Emit delivers an event to the consumer.
func (f *Fake) Emit(ev types.RawEvent) {
	select {
	case f.events <- ev:
	case <-f.done:
	}
}

// EmitError delivers a watch-level error.
func (f *Fake) EmitError(err error) {
	select {
	case f.errs <- err:
	default:
	}
}

// Events returns the event stream.
func (f *Fake) Events() <-chan types.RawEvent { return f.events }

// Errors returns the error stream.
func (f *Fake) Errors() <-chan error { return f.errs }

// Ready is closed from construction.
func (f *Fake) Ready() <-chan struct{} { return f.ready }

// Close stops the fake.
func (f *Fake) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}
