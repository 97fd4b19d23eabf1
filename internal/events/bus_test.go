package events

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func quietBus(buffer int) *Bus {
	b := NewBus(buffer)
	b.SetLogger(newBufferLogger(&bytes.Buffer{}))
	return b
}

func TestBusFanOut(t *testing.T) {
	b := quietBus(4)
	first := b.Subscribe()
	second := b.Subscribe()

	ev := Event{Type: EventSessionStarted, SessionID: "s1", Timestamp: time.Now()}
	if err := b.Publish(context.Background(), ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for i, ch := range []<-chan Event{first, second} {
		select {
		case got := <-ch:
			if got.SessionID != "s1" || got.Type != EventSessionStarted {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	b := quietBus(1)
	_ = b.Subscribe()
	ctx := context.Background()
	if err := b.Publish(ctx, Event{Type: EventPageAdded}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.Publish(ctx, Event{Type: EventPageAdded}); !errors.Is(err, ErrEventDropped) {
		t.Fatalf("second publish error = %v, want ErrEventDropped", err)
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := quietBus(1)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatalf("expected closed channel after Unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", b.SubscriberCount())
	}
}

func TestBusClose(t *testing.T) {
	b := quietBus(1)
	sub := b.Subscribe()
	b.Close()
	if _, ok := <-sub; ok {
		t.Fatalf("expected closed channel after Close")
	}
	if err := b.Publish(context.Background(), Event{}); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("publish after close = %v, want ErrBusClosed", err)
	}
	if _, ok := <-b.Subscribe(); ok {
		t.Fatalf("subscribe after close should return a closed channel")
	}
}
