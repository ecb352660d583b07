// Package notify multiplexes reconciled change notifications to any number
// of live subscribers, one per open event-stream connection. The producer
// never blocks: each subscriber has a bounded buffer and a slow client
// loses its own oldest history, never anyone else's.
package notify

import (
	"context"
	"sync"

	"github.com/hoofbeat/hoofbeat/internal/logging"
	"github.com/hoofbeat/hoofbeat/internal/types"
)

// DefaultBuffer is the per-subscriber notification buffer size.
const DefaultBuffer = 64

// Hub fans change notifications out to subscribers. There is a single
// producer (the reconciliation engine), which also makes the hub the
// natural place to assign sequence numbers.
type Hub struct {
	mu     sync.Mutex
	closed bool
	nextID int
	seq    uint64
	subs   map[int]*Subscription
	buffer int
	logger logging.Logger
}

// Subscription is one subscriber's view of the notification stream. The
// sequence it yields is restartable only by resubscribing.
type Subscription struct {
	id  int
	hub *Hub
	ch  chan types.ChangeNotification

	closeOnce sync.Once
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(buffer int, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		subs:   make(map[int]*Subscription),
		buffer: buffer,
		logger: logger.WithComponent("notify"),
	}
}

// Subscribe registers a new subscriber. On a closed hub the returned
// subscription's channel is already closed so callers fail fast.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{hub: h}
	if h.closed {
		sub.id = -1
		sub.ch = make(chan types.ChangeNotification)
		close(sub.ch)
		return sub
	}

	sub.id = h.nextID
	h.nextID++
	sub.ch = make(chan types.ChangeNotification, h.buffer)
	h.subs[sub.id] = sub
	return sub
}

// Publish assigns the next sequence number and delivers the notification
// to every attached subscriber in production order. A subscriber whose
// buffer is full has its oldest queued notification dropped to make room;
// the producer never waits.
func (h *Hub) Publish(n types.ChangeNotification) types.ChangeNotification {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return n
	}

	h.seq++
	n.Seq = h.seq

	for _, sub := range h.subs {
		select {
		case sub.ch <- n:
		default:
			// Buffer full: drop the oldest for this subscriber only.
			select {
			case dropped := <-sub.ch:
				h.logger.Debug(context.Background(), "dropped notification for slow subscriber",
					"subscriber", sub.id, "seq", dropped.Seq)
			default:
			}
			select {
			case sub.ch <- n:
			default:
			}
		}
	}
	return n
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Sequence returns the last assigned sequence number.
func (h *Hub) Sequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Close detaches every subscriber and closes their channels. Further
// publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

// C yields the subscriber's notifications in production order, subject to
// the drop-oldest overflow policy. The channel closes when the
// subscription or the hub closes.
func (s *Subscription) C() <-chan types.ChangeNotification {
	return s.ch
}

// Close detaches the subscriber. Other subscribers observe no loss.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[s.id]; ok {
			delete(h.subs, s.id)
			close(s.ch)
		}
	})
}
