package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/datawise/datawise/internal/protocol"
)

func started(id uint64) protocol.UiEvent {
	return protocol.UiEvent{TaskID: id, Kind: protocol.Started{}}
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(8)
	a := hub.Subscribe()
	b := hub.Subscribe()
	defer a.Close()
	defer b.Close()

	for i := uint64(1); i <= 3; i++ {
		if n := hub.Publish(started(i)); n != 2 {
			t.Fatalf("expected 2 receivers, got %d", n)
		}
	}

	ctx := context.Background()
	for _, r := range []*Receiver{a, b} {
		for want := uint64(1); want <= 3; want++ {
			evt, err := r.Recv(ctx)
			if err != nil {
				t.Fatalf("recv: %v", err)
			}
			if evt.Event.TaskID != want {
				t.Fatalf("expected task %d, got %d", want, evt.Event.TaskID)
			}
		}
	}
}

func TestHubLateSubscriberSeesOnlyFuture(t *testing.T) {
	hub := NewHub(8)
	hub.Publish(started(1))

	r := hub.Subscribe()
	defer r.Close()
	if _, ok, err := r.TryRecv(); ok || err != nil {
		t.Fatalf("expected no backlog, got ok=%v err=%v", ok, err)
	}

	hub.Publish(started(2))
	evt, ok, err := r.TryRecv()
	if err != nil || !ok {
		t.Fatalf("expected event, got ok=%v err=%v", ok, err)
	}
	if evt.Event.TaskID != 2 {
		t.Fatalf("expected task 2, got %d", evt.Event.TaskID)
	}
}

func TestHubLaggedReceiverResumes(t *testing.T) {
	hub := NewHub(4)
	r := hub.Subscribe()
	defer r.Close()

	for i := uint64(0); i < 10; i++ {
		hub.Publish(started(i))
	}

	_, err := r.Recv(context.Background())
	missed, lagged := IsLagged(err)
	if !lagged {
		t.Fatalf("expected lag, got %v", err)
	}
	if missed != 6 {
		t.Fatalf("expected 6 missed, got %d", missed)
	}

	for want := uint64(6); want < 10; want++ {
		evt, err := r.Recv(context.Background())
		if err != nil {
			t.Fatalf("recv after lag: %v", err)
		}
		if evt.Event.TaskID != want || evt.Seq != want {
			t.Fatalf("expected task %d, got %d (seq %d)", want, evt.Event.TaskID, evt.Seq)
		}
	}
}

func TestHubRecvWakesOnPublish(t *testing.T) {
	hub := NewHub(4)
	r := hub.Subscribe()
	defer r.Close()

	got := make(chan Event, 1)
	go func() {
		evt, err := r.Recv(context.Background())
		if err == nil {
			got <- evt
		}
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Publish(started(7))

	select {
	case evt := <-got:
		if evt.Event.TaskID != 7 {
			t.Fatalf("expected task 7, got %d", evt.Event.TaskID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receiver was not woken")
	}
}

func TestHubRecvHonoursContext(t *testing.T) {
	hub := NewHub(4)
	r := hub.Subscribe()
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHubCloseDrainsThenErrors(t *testing.T) {
	hub := NewHub(4)
	r := hub.Subscribe()
	hub.Publish(started(1))
	hub.Close()
	hub.Publish(started(2))

	if _, err := r.Recv(context.Background()); err != nil {
		t.Fatalf("expected retained event, got %v", err)
	}
	if _, err := r.Recv(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}

	r.Close()
	r.Close()
	if hub.Receivers() != 0 {
		t.Fatalf("expected no receivers, got %d", hub.Receivers())
	}
}
