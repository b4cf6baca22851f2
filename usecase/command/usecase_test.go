package command

import (
	"context"
	"testing"
	"time"

	"github.com/desain-gratis/devicehub/lib/dispatch"
	"github.com/desain-gratis/devicehub/repository/command/inmemory"
	"github.com/desain-gratis/devicehub/types/entity"
)

func TestPoll_WakesOnSubmit(t *testing.T) {
	hub := dispatch.NewHub(0)
	uc := New(inmemory.New(), hub)

	since := time.Now().UTC()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, err := uc.Submit(context.Background(), entity.DeviceCommand{
			DeviceGUID: "D1",
			Command:    "reboot",
		})
		if err != nil {
			t.Errorf("Submit failed: %v", err.Err())
		}
	}()

	start := time.Now()
	list, err := uc.Poll(context.Background(), "D1", since, 5*time.Second)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Poll failed: %v", err.Err())
	}
	if len(list) != 1 {
		t.Fatalf("Poll returned %d commands, want 1", len(list))
	}
	if list[0].Command != "reboot" {
		t.Errorf("Poll returned command %q, want %q", list[0].Command, "reboot")
	}
	// woken by the submit, well before the 5s timeout
	if elapsed > time.Second {
		t.Errorf("Poll returned after %v, want ~100ms", elapsed)
	}
}

func TestPoll_TimeoutEmptyAndClean(t *testing.T) {
	hub := dispatch.NewHub(0)
	uc := New(inmemory.New(), hub)

	start := time.Now()
	list, err := uc.Poll(context.Background(), "D1", time.Now().UTC(), 200*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Poll failed: %v", err.Err())
	}
	if len(list) != 0 {
		t.Fatalf("Poll returned %d commands, want 0", len(list))
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("Poll returned after %v, want at least the 200ms timeout", elapsed)
	}
	if got := hub.Storage().Count(DeviceKey("D1")); got != 0 {
		t.Errorf("subscription left in storage after timeout: count = %d", got)
	}
}

func TestPoll_ExistingDataNoWait(t *testing.T) {
	hub := dispatch.NewHub(0)
	uc := New(inmemory.New(), hub)

	since := time.Now().UTC().Add(-time.Minute)
	if _, err := uc.Submit(context.Background(), entity.DeviceCommand{DeviceGUID: "D1", Command: "ping"}); err != nil {
		t.Fatalf("Submit failed: %v", err.Err())
	}

	start := time.Now()
	list, err := uc.Poll(context.Background(), "D1", since, 5*time.Second)
	if err != nil {
		t.Fatalf("Poll failed: %v", err.Err())
	}
	if len(list) != 1 {
		t.Fatalf("Poll returned %d commands, want 1", len(list))
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Poll with available data took %v, want immediate", elapsed)
	}
}

func TestWaitForUpdate(t *testing.T) {
	hub := dispatch.NewHub(0)
	uc := New(inmemory.New(), hub)

	cmd, errUC := uc.Submit(context.Background(), entity.DeviceCommand{DeviceGUID: "D1", Command: "reboot"})
	if errUC != nil {
		t.Fatalf("Submit failed: %v", errUC.Err())
	}

	status := "Done"
	go func() {
		time.Sleep(100 * time.Millisecond)
		_, err := uc.Update(context.Background(), "D1", entity.DeviceCommandUpdate{ID: cmd.ID, Status: &status})
		if err != nil {
			t.Errorf("Update failed: %v", err.Err())
		}
	}()

	got, err := uc.WaitForUpdate(context.Background(), "D1", cmd.ID, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitForUpdate failed: %v", err.Err())
	}
	if got == nil {
		t.Fatalf("WaitForUpdate returned nil, want updated command")
	}
	if got.Status != "Done" || got.EntityVersion != 1 {
		t.Errorf("WaitForUpdate = status %q version %d, want Done/1", got.Status, got.EntityVersion)
	}
}

func TestWaitForUpdate_NoUpdate(t *testing.T) {
	hub := dispatch.NewHub(0)
	uc := New(inmemory.New(), hub)

	cmd, errUC := uc.Submit(context.Background(), entity.DeviceCommand{DeviceGUID: "D1", Command: "reboot"})
	if errUC != nil {
		t.Fatalf("Submit failed: %v", errUC.Err())
	}

	got, err := uc.WaitForUpdate(context.Background(), "D1", cmd.ID, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForUpdate failed: %v", err.Err())
	}
	if got != nil {
		t.Errorf("WaitForUpdate = %+v, want nil (no update yet)", got)
	}
	if count := hub.Storage().Count(UpdateKey(cmd.ID)); count != 0 {
		t.Errorf("subscription left in storage after timeout: count = %d", count)
	}
}
