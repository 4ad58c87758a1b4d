package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBus_DeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	defer bus.Close()

	all := bus.Subscribe()
	defer all.Close()
	updates := bus.Subscribe(KindDataUpdate)
	defer updates.Close()

	bus.Publish(KindStarted, nil)
	bus.Publish(KindDataUpdate, "payload")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, want := range []Kind{KindStarted, KindDataUpdate} {
		ev, err := all.Next(ctx)
		if err != nil {
			t.Fatalf("all.Next() error = %v", err)
		}
		if ev.Kind != want {
			t.Errorf("all.Next().Kind = %s, want %s", ev.Kind, want)
		}
		if ev.Timestamp.IsZero() {
			t.Error("event Timestamp not set")
		}
	}

	ev, err := updates.Next(ctx)
	if err != nil {
		t.Fatalf("updates.Next() error = %v", err)
	}
	if ev.Kind != KindDataUpdate || ev.Payload != "payload" {
		t.Errorf("updates.Next() = %+v, want dataUpdate with payload", ev)
	}
	if updates.Stats().TotalReceived != 1 {
		t.Errorf("filtered subscriber received %d events, want 1", updates.Stats().TotalReceived)
	}
}

func TestBus_CloseUnregisters(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)

	sub := bus.Subscribe()
	if bus.Subscribers() != 1 {
		t.Fatalf("Subscribers() = %d, want 1", bus.Subscribers())
	}

	sub.Close()
	sub.Close()
	if bus.Subscribers() != 0 {
		t.Errorf("Subscribers() after Close = %d, want 0", bus.Subscribers())
	}

	bus.Publish(KindStarted, nil)
	if _, err := sub.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() after Close error = %v, want ErrClosed", err)
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus(BusConfig{BufferSize: 2, MaxBufferSize: 8}, nil)
	defer bus.Close()

	sub := bus.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(KindPollComplete, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	stats := sub.Stats()
	if stats.Dropped != 992 {
		t.Errorf("Dropped = %d, want 992", stats.Dropped)
	}

	ev, _ := sub.Next(context.Background())
	if ev.Payload != 992 {
		t.Errorf("oldest retained payload = %v, want 992", ev.Payload)
	}
}

func TestBus_NextContextCancelled(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	defer bus.Close()
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := sub.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Next() error = %v, want context.Canceled", err)
	}
}

func TestBus_ClosedBus(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	live := bus.Subscribe()
	bus.Close()

	if _, err := live.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() on closed bus error = %v, want ErrClosed", err)
	}

	late := bus.Subscribe()
	if _, err := late.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Next() on late subscription error = %v, want ErrClosed", err)
	}
}
