package hubapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/lib/dispatch"
	commandinmemory "github.com/desain-gratis/devicehub/repository/command/inmemory"
	deviceinmemory "github.com/desain-gratis/devicehub/repository/device/inmemory"
	limiterinmemory "github.com/desain-gratis/devicehub/repository/limiter/inmemory"
	notificationinmemory "github.com/desain-gratis/devicehub/repository/notification/inmemory"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
	commanduc "github.com/desain-gratis/devicehub/usecase/command"
	deviceuc "github.com/desain-gratis/devicehub/usecase/device"
	notificationuc "github.com/desain-gratis/devicehub/usecase/notification"
)

type testEnv struct {
	server *httptest.Server
	hub    *dispatch.Hub

	clientToken string
	deviceToken string
	adminToken  string
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	hub := dispatch.NewHub(time.Minute)
	commands := commanduc.New(commandinmemory.New(), hub)
	notifications := notificationuc.New(notificationinmemory.New(), hub)
	devices := deviceuc.New(deviceinmemory.New(), deviceinmemory.NewClass())

	verifier := authapi.NewVerifier([]byte("test-secret"))

	svc := New(commands, notifications, devices, verifier, limiterinmemory.New(), cfg)
	router := httprouter.New()
	svc.Register(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	clientToken, err := verifier.Sign(authapi.Identity{UserID: "user-1", Role: authapi.RoleClient})
	if err != nil {
		t.Fatalf("sign client token: %v", err)
	}
	deviceToken, err := verifier.Sign(authapi.Identity{UserID: "device-1", Role: authapi.RoleDevice, DeviceGUID: "device-1"})
	if err != nil {
		t.Fatalf("sign device token: %v", err)
	}
	adminToken, err := verifier.Sign(authapi.Identity{UserID: "admin", Role: authapi.RoleAdmin})
	if err != nil {
		t.Fatalf("sign admin token: %v", err)
	}

	return &testEnv{
		server:      server,
		hub:         hub,
		clientToken: clientToken,
		deviceToken: deviceToken,
		adminToken:  adminToken,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%v %v: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var envelope struct {
		Success json.RawMessage    `json:"success"`
		Error   *types.CommonError `json:"error"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			t.Fatalf("parse envelope %q: %v", raw, err)
		}
	}
	return resp, envelope.Success
}

func (e *testEnv) registerDevice(t *testing.T, guid string) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPut, "/device/"+guid, e.adminToken, entity.Device{Name: guid})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register device: expected 201, got %v", resp.StatusCode)
	}
}

func TestPollCommands_WakesOnInsert(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "dev-a")

	type pollResult struct {
		status   int
		commands []entity.DeviceCommand
	}
	done := make(chan pollResult, 1)
	go func() {
		resp, success := env.do(t, http.MethodGet, "/device/dev-a/command/poll?waitTimeout=5", env.deviceToken, nil)
		var commands []entity.DeviceCommand
		if success != nil {
			json.Unmarshal(success, &commands)
		}
		done <- pollResult{status: resp.StatusCode, commands: commands}
	}()

	// give the poll time to park before inserting
	time.Sleep(100 * time.Millisecond)

	resp, _ := env.do(t, http.MethodPost, "/device/dev-a/command", env.clientToken, entity.DeviceCommand{Command: "reboot"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert command: expected 201, got %v", resp.StatusCode)
	}

	select {
	case result := <-done:
		if result.status != http.StatusOK {
			t.Fatalf("poll: expected 200, got %v", result.status)
		}
		if len(result.commands) != 1 || result.commands[0].Command != "reboot" {
			t.Fatalf("poll: expected the inserted command, got %+v", result.commands)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not wake on insert")
	}
}

func TestPollCommands_ZeroTimeoutEmpty(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "dev-b")

	resp, success := env.do(t, http.MethodGet, "/device/dev-b/command/poll?waitTimeout=0", env.deviceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %v", resp.StatusCode)
	}

	var commands []entity.DeviceCommand
	if success != nil {
		json.Unmarshal(success, &commands)
	}
	if len(commands) != 0 {
		t.Fatalf("expected no commands, got %+v", commands)
	}
	if n := env.hub.Storage().Total(); n != 0 {
		t.Fatalf("expected no leftover subscriptions, got %v", n)
	}
}

func TestPollNotifications_WakesOnInsert(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "dev-c")

	done := make(chan []entity.DeviceNotification, 1)
	go func() {
		_, success := env.do(t, http.MethodGet, "/device/dev-c/notification/poll?waitTimeout=5", env.clientToken, nil)
		var list []entity.DeviceNotification
		if success != nil {
			json.Unmarshal(success, &list)
		}
		done <- list
	}()

	time.Sleep(100 * time.Millisecond)

	resp, _ := env.do(t, http.MethodPost, "/device/dev-c/notification", env.deviceToken, entity.DeviceNotification{Notification: "temperature"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert notification: expected 201, got %v", resp.StatusCode)
	}

	select {
	case list := <-done:
		if len(list) != 1 || list[0].Notification != "temperature" {
			t.Fatalf("expected the inserted notification, got %+v", list)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not wake on insert")
	}
}

func TestWaitCommandUpdate_WakesOnUpdate(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "dev-d")

	resp, success := env.do(t, http.MethodPost, "/device/dev-d/command", env.clientToken, entity.DeviceCommand{Command: "reboot"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("insert command: expected 201, got %v", resp.StatusCode)
	}
	var cmd entity.DeviceCommand
	if err := json.Unmarshal(success, &cmd); err != nil {
		t.Fatalf("parse inserted command: %v", err)
	}

	done := make(chan *entity.DeviceCommand, 1)
	go func() {
		_, success := env.do(t, http.MethodGet, "/device/dev-d/command/"+cmd.ID+"/poll?waitTimeout=5", env.clientToken, nil)
		var updated *entity.DeviceCommand
		if len(success) > 0 {
			json.Unmarshal(success, &updated)
		}
		done <- updated
	}()

	time.Sleep(100 * time.Millisecond)

	status := "Done"
	resp, _ = env.do(t, http.MethodPut, "/device/dev-d/command/"+cmd.ID, env.deviceToken, entity.DeviceCommandUpdate{Status: &status})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("update command: expected 204, got %v", resp.StatusCode)
	}

	select {
	case updated := <-done:
		if updated == nil {
			t.Fatal("expected the updated command, got empty result")
		}
		if updated.Status != "Done" {
			t.Fatalf("expected status Done, got %q", updated.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not wake on update")
	}
}

func TestAuth_MissingToken(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, _ := env.do(t, http.MethodGet, "/device", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp.StatusCode)
	}
}

func TestAuth_RoleForbidden(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "device-1")

	// a device may not issue commands to itself
	resp, _ := env.do(t, http.MethodPost, "/device/device-1/command", env.deviceToken, entity.DeviceCommand{Command: "reboot"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp.StatusCode)
	}
}

func TestAuth_DeviceCannotTouchOtherDevice(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "other-device")

	resp, _ := env.do(t, http.MethodGet, "/device/other-device/command/poll?waitTimeout=0", env.deviceToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp.StatusCode)
	}
}

func TestAuth_DeviceKeyHeaders(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, _ := env.do(t, http.MethodPut, "/device/dev-k", env.adminToken, entity.Device{Name: "sensor", Key: "secret-key"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register device: expected 201, got %v", resp.StatusCode)
	}

	poll := func(key string) int {
		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/device/dev-k/command/poll?waitTimeout=0", nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set("Auth-DeviceID", "dev-k")
		req.Header.Set("Auth-DeviceKey", key)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if status := poll("secret-key"); status != http.StatusOK {
		t.Fatalf("valid device key: expected 200, got %v", status)
	}
	if status := poll("wrong-key"); status != http.StatusUnauthorized {
		t.Fatalf("wrong device key: expected 401, got %v", status)
	}
}

func TestPollLimiter_TooManyRequests(t *testing.T) {
	env := newTestEnv(t, Config{PollLimit: 1, PollWindow: time.Minute})
	env.registerDevice(t, "dev-e")

	resp, _ := env.do(t, http.MethodGet, "/device/dev-e/command/poll?waitTimeout=0", env.deviceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first poll: expected 200, got %v", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/device/dev-e/command/poll?waitTimeout=0", env.deviceToken, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second poll: expected 429, got %v", resp.StatusCode)
	}
}

func TestDeviceRegister_CreatedThenReplaced(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, _ := env.do(t, http.MethodPut, "/device/dev-f", env.adminToken, entity.Device{Name: "sensor"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %v", resp.StatusCode)
	}

	resp, success := env.do(t, http.MethodPut, "/device/dev-f", env.adminToken, entity.Device{Name: "sensor-renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second register: expected 200, got %v", resp.StatusCode)
	}
	var d entity.Device
	if err := json.Unmarshal(success, &d); err != nil {
		t.Fatalf("parse device: %v", err)
	}
	if d.Name != "sensor-renamed" {
		t.Fatalf("expected overwritten name, got %q", d.Name)
	}
}

func TestDeviceClass_CRUD(t *testing.T) {
	env := newTestEnv(t, Config{})

	resp, success := env.do(t, http.MethodPost, "/device-class", env.adminToken, entity.DeviceClass{Name: "thermostat", Version: "1.0"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create class: expected 201, got %v", resp.StatusCode)
	}
	var c entity.DeviceClass
	if err := json.Unmarshal(success, &c); err != nil {
		t.Fatalf("parse class: %v", err)
	}

	resp, _ = env.do(t, http.MethodGet, "/device-class/"+c.ID, env.clientToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get class: expected 200, got %v", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/device-class/"+c.ID, env.adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete class: expected 200, got %v", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/device-class/"+c.ID, env.clientToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted class: expected 404, got %v", resp.StatusCode)
	}
}

func TestQueryCommands_BadSortField(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.registerDevice(t, "dev-g")

	resp, _ := env.do(t, http.MethodGet, "/device/dev-g/command?sortField=parameters", env.clientToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp.StatusCode)
	}
}
