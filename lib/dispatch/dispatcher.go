package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Dispatcher fans a published event out to every live subscriber of its
// entity key. Publishes for the same key are serialized by a keyed mutex
// owned by the dispatcher (not by storage), so a given subscriber sees whole
// events in publish order while unrelated keys stay concurrent.
type Dispatcher struct {
	storage *Storage
	keyed   keyedMutex
}

func NewDispatcher(storage *Storage) *Dispatcher {
	return &Dispatcher{
		storage: storage,
		keyed:   keyedMutex{entries: make(map[string]*keyLock)},
	}
}

// Publish is called by the persistence side after a commit, at most once per
// state change. A failing subscriber is removed and the rest still get the
// event; the publisher is never failed by someone else's dead connection.
func (d *Dispatcher) Publish(ctx context.Context, entityKey string, payload any) {
	ev := Event{Key: entityKey, Payload: payload}

	unlock := d.keyed.lock(entityKey)
	defer unlock()

	subs := d.storage.Lookup(entityKey)
	for _, sub := range subs {
		if err := sub.Handler.Deliver(ctx, ev); err != nil {
			log.Err(err).Msgf("dispatch: delivery to %v failed, dropping subscriber", sub.RequestID)
			d.storage.RemoveByRequestID(sub.RequestID)
			continue
		}
		if sub.Handler.OneShot() {
			d.storage.RemoveByRequestID(sub.RequestID)
		}
	}
}

// keyedMutex hands out one mutex per in-flight key and garbage-collects it
// when the last holder leaves, so per-command update keys don't accumulate.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyLock
}

type keyLock struct {
	refs int
	mu   sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.entries[key]
	if !ok {
		l = &keyLock{}
		k.entries[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
