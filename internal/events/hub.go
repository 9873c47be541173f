package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/datawise/datawise/internal/protocol"
)

// DefaultCapacity is the number of events retained for slow receivers.
const DefaultCapacity = 100

// ErrClosed is returned by Recv once the hub is closed and the receiver has
// drained everything still retained.
var ErrClosed = errors.New("event hub closed")

// LaggedError reports that a receiver fell behind and Missed events were
// overwritten before it read them. The receiver resumes at the oldest
// retained event.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged, %d events skipped", e.Missed)
}

// IsLagged reports whether err is a *LaggedError and returns the skip count.
func IsLagged(err error) (uint64, bool) {
	var lagged *LaggedError
	if errors.As(err, &lagged) {
		return lagged.Missed, true
	}
	return 0, false
}

// Event is a published UiEvent stamped with its broadcast sequence number.
type Event struct {
	Seq       uint64           `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	Event     protocol.UiEvent `json:"event"`
}

// Hub broadcasts events to every receiver through a fixed-size ring.
// Publishers never block; a receiver that falls more than the capacity
// behind observes a LaggedError instead of stalling the producer.
type Hub struct {
	mu        sync.Mutex
	ring      []Event
	next      uint64
	notify    chan struct{}
	receivers int
	closed    bool
}

// NewHub creates a hub retaining capacity events. Non-positive values use
// DefaultCapacity.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		ring:   make([]Event, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (h *Hub) Capacity() int {
	return len(h.ring)
}

// Publish stamps evt and appends it to the ring, waking blocked receivers.
// It returns the number of receivers subscribed at the time of publishing.
// Publishing on a closed hub is a no-op.
func (h *Hub) Publish(evt protocol.UiEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	h.ring[h.next%uint64(len(h.ring))] = Event{
		Seq:       h.next,
		Timestamp: time.Now().UTC(),
		Event:     evt,
	}
	h.next++
	close(h.notify)
	h.notify = make(chan struct{})
	return h.receivers
}

// Subscribe registers a receiver that observes every event published after
// this call and none published before it.
func (h *Hub) Subscribe() *Receiver {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.receivers++
	return &Receiver{hub: h, cursor: h.next}
}

// Receivers returns the number of open receivers.
func (h *Hub) Receivers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receivers
}

// Close stops publishing. Receivers drain what is retained and then get
// ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.notify)
}

// Receiver is one subscriber's cursor into the hub.
type Receiver struct {
	hub    *Hub
	cursor uint64
	once   sync.Once
}

// TryRecv returns the next event without blocking. ok is false when nothing
// new has been published.
func (r *Receiver) TryRecv() (evt Event, ok bool, err error) {
	evt, ok, _, err = r.poll()
	return evt, ok, err
}

// Recv blocks until an event is available, the receiver lagged, the hub
// closed or ctx ended.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	for {
		evt, ok, wait, err := r.poll()
		if err != nil || ok {
			return evt, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

func (r *Receiver) poll() (Event, bool, <-chan struct{}, error) {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := uint64(len(h.ring))
	var oldest uint64
	if h.next > capacity {
		oldest = h.next - capacity
	}
	if r.cursor < oldest {
		missed := oldest - r.cursor
		r.cursor = oldest
		return Event{}, false, nil, &LaggedError{Missed: missed}
	}
	if r.cursor < h.next {
		evt := h.ring[r.cursor%capacity]
		r.cursor++
		return evt, true, nil, nil
	}
	if h.closed {
		return Event{}, false, nil, ErrClosed
	}
	return Event{}, false, h.notify, nil
}

// Close unsubscribes the receiver.
func (r *Receiver) Close() {
	r.once.Do(func() {
		r.hub.mu.Lock()
		r.hub.receivers--
		r.hub.mu.Unlock()
	})
}
