package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultWaitTimeout = 30 * time.Second
	MaxWaitTimeout     = 60 * time.Second
)

// Hub is the process-scoped engine handed to the REST, websocket and usecase
// layers by constructor injection. It owns the storage and the dispatcher.
type Hub struct {
	storage    *Storage
	dispatcher *Dispatcher
	maxWait    time.Duration
}

func NewHub(maxWait time.Duration) *Hub {
	if maxWait <= 0 {
		maxWait = MaxWaitTimeout
	}
	storage := NewStorage()
	return &Hub{
		storage:    storage,
		dispatcher: NewDispatcher(storage),
		maxWait:    maxWait,
	}
}

func (h *Hub) Storage() *Storage {
	return h.storage
}

// SubscribeAndWait blocks the calling REST request up to timeout (clamped to
// the configured maximum) waiting for an event on the entity key. The caller
// re-queries its DAO after a true return; the wake is a hint, not the data.
func (h *Hub) SubscribeAndWait(ctx context.Context, entityKey string, timeout time.Duration) bool {
	if timeout > h.maxWait {
		timeout = h.maxWait
	}

	handler := NewFutureHandler()
	sub := Subscription{
		EntityKey: entityKey,
		RequestID: uuid.NewString(),
		Handler:   handler,
	}

	return SubscribeAndWait(ctx, h.storage, sub, handler.Signal(), timeout)
}

// Publish fans the event out to the key's current subscribers.
func (h *Hub) Publish(ctx context.Context, entityKey string, payload any) {
	h.dispatcher.Publish(ctx, entityKey, payload)
}

// NewSession allocates per-connection state for a websocket connection.
func (h *Hub) NewSession(conn Conn) *Session {
	return NewSession(uuid.NewString(), conn, h.storage)
}

// RegisterPushSubscription subscribes the session to an entity key and
// returns the request id usable with Unsubscribe.
func (h *Hub) RegisterPushSubscription(entityKey string, session *Session, encode func(ev Event) ([]byte, error)) string {
	sub := Subscription{
		EntityKey: entityKey,
		RequestID: uuid.NewString(),
		Handler:   NewPushHandler(session, encode),
	}
	return session.Subscribe(sub)
}

func (h *Hub) Unsubscribe(requestID string) {
	h.storage.RemoveByRequestID(requestID)
}

// OnSessionClose is the websocket transport lifecycle hook.
func (h *Hub) OnSessionClose(sessionID string) {
	h.storage.RemoveBySession(sessionID)
}
