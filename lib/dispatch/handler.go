package dispatch

import (
	"context"
	"errors"
	"sync"
)

var ErrNoEncoder = errors.New("push handler has no encoder")

var (
	_ Handler = &FutureHandler{}
	_ Handler = &PushHandler{}
)

// FutureHandler completes a single-assignment signal. Used by REST long poll:
// the blocked request waits on Signal(), the dispatcher completes it.
// Deliver is idempotent; completing an already-completed signal is a no-op.
type FutureHandler struct {
	once sync.Once
	ch   chan struct{}
}

func NewFutureHandler() *FutureHandler {
	return &FutureHandler{ch: make(chan struct{})}
}

func (h *FutureHandler) Deliver(_ context.Context, _ Event) error {
	h.once.Do(func() {
		close(h.ch)
	})
	return nil
}

func (h *FutureHandler) OneShot() bool {
	return true
}

// Signal indicates "state changed", not which change; the waiting caller must
// re-query the source of truth after it fires.
func (h *FutureHandler) Signal() <-chan struct{} {
	return h.ch
}

// PushHandler serializes the event and writes it to the owning websocket
// session. The write goes through the session queue lock, so dispatch pushes
// and the session's own replies never interleave on the wire.
type PushHandler struct {
	session *Session
	encode  func(ev Event) ([]byte, error)
}

func NewPushHandler(session *Session, encode func(ev Event) ([]byte, error)) *PushHandler {
	return &PushHandler{session: session, encode: encode}
}

func (h *PushHandler) Deliver(ctx context.Context, ev Event) error {
	if h.encode == nil {
		return ErrNoEncoder
	}
	payload, err := h.encode(ev)
	if err != nil {
		return err
	}
	return h.session.Write(ctx, payload)
}

func (h *PushHandler) OneShot() bool {
	return false
}
