package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn is the write side of a websocket connection as the engine sees it.
// Implemented by the ws delivery layer; the engine never imports the
// websocket package.
type Conn interface {
	Write(ctx context.Context, payload []byte) error
}

// Session is the per-websocket-connection state: an outbound queue lock
// serializing all writes (replies and dispatch pushes), a subscription lock
// serializing register/remove against concurrent dispatch, and an idempotent
// close that purges the session's subscriptions from storage.
type Session struct {
	id      string
	conn    Conn
	storage *Storage

	queueMu   sync.Mutex
	subMu     sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func NewSession(id string, conn Conn, storage *Storage) *Session {
	return &Session{
		id:      id,
		conn:    conn,
		storage: storage,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Write acquires the queue lock for the duration of a single frame write.
func (s *Session) Write(ctx context.Context, payload []byte) error {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.conn.Write(ctx, payload)
}

// Subscribe registers a push subscription owned by this session and returns
// its request id. After close it is a no-op returning "".
func (s *Session) Subscribe(sub Subscription) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return ""
	}
	sub.SessionID = s.id
	s.storage.Insert(sub)
	return sub.RequestID
}

func (s *Session) Unsubscribe(requestID string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.storage.RemoveByRequestID(requestID)
}

// Close runs exactly once even when triggered concurrently from the reader
// goroutine, a failed push and the liveness sweep.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.subMu.Lock()
		s.closed = true
		s.storage.RemoveBySession(s.id)
		s.subMu.Unlock()
		log.Info().Msgf("session %v: closed, subscriptions purged", s.id)
	})
}
