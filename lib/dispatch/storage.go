package dispatch

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Storage is the subscription registry: entity key -> live subscriptions,
// plus a session index for bulk removal on websocket close.
//
// Snapshot (Lookup) and mutation of the same key are mutually exclusive at
// per-key bucket granularity, so dispatch on one device never serializes
// against subscriptions on another.
type Storage struct {
	mu   sync.RWMutex
	keys map[string]*bucket

	idMu      sync.Mutex
	byID      map[string]string            // requestID -> entityKey
	bySession map[string]map[string]string // sessionID -> requestID -> entityKey

	strict bool
}

type bucket struct {
	mu   sync.Mutex
	subs map[string]Subscription // by requestID
}

func NewStorage() *Storage {
	return &Storage{
		keys:      make(map[string]*bucket),
		byID:      make(map[string]string),
		bySession: make(map[string]map[string]string),
	}
}

// Strict makes a duplicate requestID panic instead of replace. Test builds only.
func (s *Storage) Strict() *Storage {
	s.strict = true
	return s
}

func (s *Storage) Insert(sub Subscription) {
	s.idMu.Lock()
	if prev, ok := s.byID[sub.RequestID]; ok {
		if s.strict {
			s.idMu.Unlock()
			log.Panic().Msgf("storage: duplicate request id %v (key %v)", sub.RequestID, prev)
		}
		// self-heal: drop the stale entry, keep going
		log.Error().Msgf("storage: duplicate request id %v, replacing stale entry", sub.RequestID)
		s.idMu.Unlock()
		s.RemoveByRequestID(sub.RequestID)
		s.idMu.Lock()
	}
	s.byID[sub.RequestID] = sub.EntityKey
	if sub.SessionID != "" {
		if _, ok := s.bySession[sub.SessionID]; !ok {
			s.bySession[sub.SessionID] = make(map[string]string)
		}
		s.bySession[sub.SessionID][sub.RequestID] = sub.EntityKey
	}
	s.idMu.Unlock()

	b := s.getOrCreateBucket(sub.EntityKey)
	b.mu.Lock()
	b.subs[sub.RequestID] = sub
	b.mu.Unlock()
}

// Lookup returns a snapshot of current subscribers for the key. The snapshot
// is dispatch's only synchronization point with storage; no storage lock is
// held while handlers deliver.
func (s *Storage) Lookup(entityKey string) []Subscription {
	s.mu.RLock()
	b, ok := s.keys[entityKey]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		result = append(result, sub)
	}
	return result
}

// RemoveByRequestID is idempotent; timeout-driven and delivery-driven removal
// race by design and the loser is a no-op.
func (s *Storage) RemoveByRequestID(requestID string) {
	s.idMu.Lock()
	entityKey, ok := s.byID[requestID]
	if !ok {
		s.idMu.Unlock()
		return
	}
	delete(s.byID, requestID)
	for sessionID, reqs := range s.bySession {
		if _, ok := reqs[requestID]; ok {
			delete(reqs, requestID)
			if len(reqs) == 0 {
				delete(s.bySession, sessionID)
			}
			break
		}
	}
	s.idMu.Unlock()

	s.removeFromBucket(entityKey, requestID)
}

// RemoveBySession purges every subscription owned by the session. Called on
// websocket close; other sessions and REST waiters are untouched.
func (s *Storage) RemoveBySession(sessionID string) {
	s.idMu.Lock()
	reqs := s.bySession[sessionID]
	delete(s.bySession, sessionID)
	byKey := make(map[string][]string, len(reqs))
	for requestID, entityKey := range reqs {
		delete(s.byID, requestID)
		byKey[entityKey] = append(byKey[entityKey], requestID)
	}
	s.idMu.Unlock()

	for entityKey, ids := range byKey {
		for _, requestID := range ids {
			s.removeFromBucket(entityKey, requestID)
		}
	}
}

// Total reports live subscriptions across all keys.
func (s *Storage) Total() int {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return len(s.byID)
}

// Count reports live subscriptions for a key.
func (s *Storage) Count(entityKey string) int {
	s.mu.RLock()
	b, ok := s.keys[entityKey]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (s *Storage) getOrCreateBucket(entityKey string) *bucket {
	s.mu.RLock()
	b, ok := s.keys[entityKey]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.keys[entityKey]; ok {
		return b
	}
	b = &bucket{subs: make(map[string]Subscription)}
	s.keys[entityKey] = b
	return b
}

func (s *Storage) removeFromBucket(entityKey, requestID string) {
	s.mu.RLock()
	b, ok := s.keys[entityKey]
	s.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.Lock()
	delete(b.subs, requestID)
	empty := len(b.subs) == 0
	b.mu.Unlock()

	if !empty {
		return
	}

	// drop the empty bucket so per-command update keys don't pile up
	s.mu.Lock()
	if b, ok := s.keys[entityKey]; ok {
		b.mu.Lock()
		if len(b.subs) == 0 {
			delete(s.keys, entityKey)
		}
		b.mu.Unlock()
	}
	s.mu.Unlock()
}
