package dispatch

import (
	"context"
	"time"
)

// SubscribeAndWait registers the subscription, blocks up to timeout on the
// signal, then cleans up. Returns whether a wake occurred.
//
// The signal only says "something changed"; the caller must re-query its
// source of truth after a true return. A zero timeout checks the signal once
// without waiting. Context cancellation (client gone) cleans up the same way
// a timeout does; every registered subscription leaves storage through either
// delivery or this removal, there is no third path.
func SubscribeAndWait(ctx context.Context, storage *Storage, sub Subscription, signal <-chan struct{}, timeout time.Duration) bool {
	storage.Insert(sub)

	if timeout <= 0 {
		select {
		case <-signal:
			return true
		default:
			storage.RemoveByRequestID(sub.RequestID)
			return false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-signal:
		return true
	case <-t.C:
	case <-ctx.Done():
	}

	// Losing the race against a concurrent delivery is fine: the dispatcher
	// already removed the entry and this is a no-op.
	storage.RemoveByRequestID(sub.RequestID)
	return false
}
