package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeAndWait_ZeroTimeout(t *testing.T) {
	s := NewStorage()
	h := NewFutureHandler()
	sub := Subscription{EntityKey: "command:d1", RequestID: "r1", Handler: h}

	start := time.Now()
	delivered := SubscribeAndWait(context.Background(), s, sub, h.Signal(), 0)
	if delivered {
		t.Errorf("SubscribeAndWait(timeout=0) = true, want false")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("SubscribeAndWait(timeout=0) took %v, want immediate return", elapsed)
	}
	if got := s.Count("command:d1"); got != 0 {
		t.Errorf("Count after zero-timeout wait = %d, want 0", got)
	}
}

func TestSubscribeAndWait_WakesOnPublish(t *testing.T) {
	s := NewStorage()
	d := NewDispatcher(s)
	h := NewFutureHandler()
	sub := Subscription{EntityKey: "command:D1", RequestID: "r1", Handler: h}

	go func() {
		time.Sleep(100 * time.Millisecond)
		d.Publish(context.Background(), "command:D1", "cmd")
	}()

	start := time.Now()
	delivered := SubscribeAndWait(context.Background(), s, sub, h.Signal(), 5*time.Second)
	elapsed := time.Since(start)

	if !delivered {
		t.Fatalf("SubscribeAndWait = false, want true")
	}
	// woken by the publish, not by the 5s timeout
	if elapsed > time.Second {
		t.Errorf("SubscribeAndWait returned after %v, want ~100ms", elapsed)
	}
	if got := s.Count("command:D1"); got != 0 {
		t.Errorf("Count after delivered one-shot = %d, want 0", got)
	}
}

func TestSubscribeAndWait_Timeout(t *testing.T) {
	s := NewStorage()
	h := NewFutureHandler()
	sub := Subscription{EntityKey: "command:D1", RequestID: "r1", Handler: h}

	start := time.Now()
	delivered := SubscribeAndWait(context.Background(), s, sub, h.Signal(), 200*time.Millisecond)
	elapsed := time.Since(start)

	if delivered {
		t.Fatalf("SubscribeAndWait = true, want false")
	}
	if elapsed < 200*time.Millisecond || elapsed > time.Second {
		t.Errorf("SubscribeAndWait returned after %v, want ~200ms", elapsed)
	}
	if got := s.Count("command:D1"); got != 0 {
		t.Errorf("Count after timeout = %d, want 0", got)
	}
}

func TestSubscribeAndWait_ContextCancel(t *testing.T) {
	s := NewStorage()
	h := NewFutureHandler()
	sub := Subscription{EntityKey: "command:D1", RequestID: "r1", Handler: h}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	delivered := SubscribeAndWait(ctx, s, sub, h.Signal(), 10*time.Second)
	if delivered {
		t.Errorf("SubscribeAndWait after cancel = true, want false")
	}
	// client disconnect cleans up the same way a timeout does
	if got := s.Count("command:D1"); got != 0 {
		t.Errorf("Count after cancel = %d, want 0", got)
	}
}

func TestFutureHandler_DeliverIdempotent(t *testing.T) {
	h := NewFutureHandler()

	if err := h.Deliver(context.Background(), Event{}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	// setting an already-set signal is a no-op
	if err := h.Deliver(context.Background(), Event{}); err != nil {
		t.Fatalf("second Deliver() error = %v", err)
	}

	select {
	case <-h.Signal():
	default:
		t.Errorf("Signal() not completed after Deliver")
	}
}
