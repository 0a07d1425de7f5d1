package remote

import (
	"context"
	"testing"
	"time"
)

func TestChannel(t *testing.T) {
	if got := Channel("42", EntityBookmarks); got != "user:42:bookmarks" {
		t.Errorf("Channel() = %q", got)
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1 := b.Subscribe(ctx, "user:1:bookmarks")
	ch2 := b.Subscribe(ctx, "user:1:bookmarks")
	other := b.Subscribe(ctx, "user:2:bookmarks")

	ev, err := NewEvent(KindDelete, EntityBookmarks, DeletePayload{ID: "x"})
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if n := b.Publish("user:1:bookmarks", ev); n != 2 {
		t.Errorf("Publish() delivered to %d, want 2", n)
	}

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Kind != KindDelete || string(got.Payload) != `{"id":"x"}` {
				t.Errorf("got %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
	select {
	case got := <-other:
		t.Errorf("other owner received %+v", got)
	default:
	}
}

func TestBrokerClosesOnCancel(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, "c")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if b.Subscribers("c") != 0 {
		t.Errorf("Subscribers() = %d after cancel", b.Subscribers("c"))
	}
}

func TestBrokerCloseThenCancel(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx, "c")

	b.Close()
	cancel()
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = b.Subscribe(ctx, "c")

	b.Publish("c", Event{Kind: KindInsert})
	if n := b.Publish("c", Event{Kind: KindInsert}); n != 0 {
		t.Errorf("second publish to a full subscriber delivered %d", n)
	}
}
