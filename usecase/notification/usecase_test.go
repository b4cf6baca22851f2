package notification

import (
	"context"
	"testing"
	"time"

	"github.com/desain-gratis/devicehub/lib/dispatch"
	"github.com/desain-gratis/devicehub/repository/notification/inmemory"
	"github.com/desain-gratis/devicehub/types/entity"
)

func TestPoll_WakesOnSubmit(t *testing.T) {
	ctx := context.Background()
	hub := dispatch.NewHub(time.Minute)
	uc := New(inmemory.New(), hub)

	since := time.Now().UTC()

	type pollResult struct {
		list []entity.DeviceNotification
		err  error
	}
	done := make(chan pollResult, 1)
	go func() {
		list, err := uc.Poll(ctx, "dev-a", since, 5*time.Second)
		if err != nil {
			done <- pollResult{err: err.Err()}
			return
		}
		done <- pollResult{list: list}
	}()

	time.Sleep(100 * time.Millisecond)

	if _, err := uc.Submit(ctx, entity.DeviceNotification{DeviceGUID: "dev-a", Notification: "temperature"}); err != nil {
		t.Fatalf("submit: %v", err.Err())
	}

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("poll: %v", result.err)
		}
		if len(result.list) != 1 || result.list[0].Notification != "temperature" {
			t.Fatalf("expected the submitted notification, got %+v", result.list)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not wake on submit")
	}
}

func TestPoll_ZeroTimeoutNoWait(t *testing.T) {
	ctx := context.Background()
	hub := dispatch.NewHub(time.Minute)
	uc := New(inmemory.New(), hub)

	start := time.Now()
	list, err := uc.Poll(ctx, "dev-a", time.Now().UTC(), 0)
	if err != nil {
		t.Fatalf("poll: %v", err.Err())
	}
	if len(list) != 0 {
		t.Fatalf("expected no notifications, got %+v", list)
	}
	if time.Since(start) > time.Second {
		t.Fatal("zero timeout poll must not block")
	}
	if n := hub.Storage().Total(); n != 0 {
		t.Fatalf("expected no leftover subscriptions, got %v", n)
	}
}
