package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/desain-gratis/devicehub/repository/limiter"
	types "github.com/desain-gratis/devicehub/types/http"
)

var _ limiter.Repository = &handler{}

// Single-process variant for tests and redis-less deployments.
type handler struct {
	mtx     *sync.Mutex
	entries map[string]*entry
}

type entry struct {
	counter   int
	expiresAt time.Time
}

func New() *handler {
	return &handler{
		mtx:     &sync.Mutex{},
		entries: make(map[string]*entry),
	}
}

func (h *handler) Get(ctx context.Context, callerID, key string) (counter int, remaining time.Duration, err *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	e, ok := h.entries[callerID+"|"+key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, 0, nil
	}
	return e.counter, time.Until(e.expiresAt), nil
}

func (h *handler) Increment(ctx context.Context, callerID, key string, expiry time.Duration) (err *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	combined := callerID + "|" + key
	e, ok := h.entries[combined]
	if !ok || time.Now().After(e.expiresAt) {
		h.entries[combined] = &entry{counter: 1, expiresAt: time.Now().Add(expiry)}
		return nil
	}
	e.counter++
	return nil
}
