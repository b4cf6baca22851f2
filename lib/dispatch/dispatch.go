package dispatch

import (
	"context"
)

// Event is the payload handed to a subscription handler. It is produced by
// the persistence side (usecase layer) after a command/notification commit
// and is not mutated after construction.
type Event struct {
	Key     string
	Payload any
}

// Handler is the delivery strategy of a subscription. Two implementations
// exist: FutureHandler (completes a blocked long poll) and PushHandler
// (writes to a live websocket session).
type Handler interface {
	Deliver(ctx context.Context, ev Event) error

	// OneShot handlers are removed from storage after first successful delivery.
	OneShot() bool
}

// Subscription binds an entity key to a handler. Immutable; replace, don't update.
type Subscription struct {
	EntityKey string
	RequestID string
	SessionID string // empty for REST waiters
	Handler   Handler
}
