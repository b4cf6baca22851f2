package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

type nopHandler struct {
	oneShot bool
}

func (h *nopHandler) Deliver(_ context.Context, _ Event) error { return nil }
func (h *nopHandler) OneShot() bool                            { return h.oneShot }

func TestStorage_InsertLookup(t *testing.T) {
	s := NewStorage()

	s.Insert(Subscription{EntityKey: "command:d1", RequestID: "r1", Handler: &nopHandler{}})
	s.Insert(Subscription{EntityKey: "command:d1", RequestID: "r2", Handler: &nopHandler{}})
	s.Insert(Subscription{EntityKey: "command:d2", RequestID: "r3", Handler: &nopHandler{}})

	if got := len(s.Lookup("command:d1")); got != 2 {
		t.Errorf("Lookup(command:d1) = %d subs, want 2", got)
	}
	if got := len(s.Lookup("command:d2")); got != 1 {
		t.Errorf("Lookup(command:d2) = %d subs, want 1", got)
	}
	if got := s.Lookup("command:d3"); got != nil {
		t.Errorf("Lookup(command:d3) = %v, want nil", got)
	}
}

func TestStorage_RemoveByRequestID_Idempotent(t *testing.T) {
	s := NewStorage()
	s.Insert(Subscription{EntityKey: "command:d1", RequestID: "r1", Handler: &nopHandler{}})

	s.RemoveByRequestID("r1")
	if got := s.Count("command:d1"); got != 0 {
		t.Fatalf("Count after remove = %d, want 0", got)
	}

	// second removal is a no-op, not an error
	s.RemoveByRequestID("r1")
	s.RemoveByRequestID("never-existed")
}

func TestStorage_RemoveBySession(t *testing.T) {
	s := NewStorage()

	for i := 0; i < 5; i++ {
		s.Insert(Subscription{
			EntityKey: fmt.Sprintf("notification:d%d", i),
			RequestID: fmt.Sprintf("x-%d", i),
			SessionID: "session-x",
			Handler:   &nopHandler{},
		})
	}
	s.Insert(Subscription{EntityKey: "notification:d0", RequestID: "y-0", SessionID: "session-y", Handler: &nopHandler{}})
	s.Insert(Subscription{EntityKey: "notification:d0", RequestID: "rest-0", Handler: &nopHandler{}})

	s.RemoveBySession("session-x")

	for i := 1; i < 5; i++ {
		if got := s.Count(fmt.Sprintf("notification:d%d", i)); got != 0 {
			t.Errorf("Count(notification:d%d) = %d, want 0", i, got)
		}
	}
	// session-y and the REST waiter on d0 are untouched
	if got := s.Count("notification:d0"); got != 2 {
		t.Errorf("Count(notification:d0) = %d, want 2", got)
	}

	// closing an unknown session is a no-op
	s.RemoveBySession("session-z")
}

func TestStorage_DuplicateRequestID_SelfHeal(t *testing.T) {
	s := NewStorage()
	s.Insert(Subscription{EntityKey: "command:d1", RequestID: "dup", Handler: &nopHandler{}})
	s.Insert(Subscription{EntityKey: "command:d2", RequestID: "dup", Handler: &nopHandler{}})

	// stale entry under the old key is dropped
	if got := s.Count("command:d1"); got != 0 {
		t.Errorf("Count(command:d1) = %d, want 0", got)
	}
	if got := s.Count("command:d2"); got != 1 {
		t.Errorf("Count(command:d2) = %d, want 1", got)
	}
}

func TestStorage_ConcurrentChurn(t *testing.T) {
	s := NewStorage()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				key := fmt.Sprintf("command:d%d", i%4)
				s.Insert(Subscription{EntityKey: key, RequestID: id, Handler: &nopHandler{}})
				s.Lookup(key)
				s.RemoveByRequestID(id)
			}
		}(w)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("command:d%d", i)
		if got := s.Count(key); got != 0 {
			t.Errorf("Count(%v) = %d, want 0", key, got)
		}
	}
}
