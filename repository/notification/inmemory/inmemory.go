package inmemory

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/desain-gratis/devicehub/repository/notification"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

var _ notification.Repository = &handler{}

type handler struct {
	mtx     *sync.Mutex
	counter int

	indexByDevice map[string]map[string]struct{}
	data          map[string]entity.DeviceNotification
}

func New() *handler {
	return &handler{
		mtx:           &sync.Mutex{},
		indexByDevice: make(map[string]map[string]struct{}),
		data:          make(map[string]entity.DeviceNotification),
	}
}

func (h *handler) Insert(ctx context.Context, n entity.DeviceNotification) (entity.DeviceNotification, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if n.ID == "" {
		h.counter++
		n.ID = strconv.Itoa(h.counter)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	h.data[n.ID] = n
	if _, ok := h.indexByDevice[n.DeviceGUID]; !ok {
		h.indexByDevice[n.DeviceGUID] = make(map[string]struct{})
	}
	h.indexByDevice[n.DeviceGUID][n.ID] = struct{}{}

	return n, nil
}

func (h *handler) GetByID(ctx context.Context, deviceGUID, ID string) (entity.DeviceNotification, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	n, ok := h.data[ID]
	if !ok || n.DeviceGUID != deviceGUID {
		return entity.DeviceNotification{}, &types.CommonError{
			Errors: []types.Error{
				{
					HTTPCode: http.StatusNotFound,
					Code:     "NOT_FOUND",
					Message:  "No notification with ID '" + ID + "'",
				},
			},
		}
	}
	return n, nil
}

func (h *handler) QueryByDevice(ctx context.Context, deviceGUID string, q notification.Query) ([]entity.DeviceNotification, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.DeviceNotification, 0)
	for id := range h.indexByDevice[deviceGUID] {
		n := h.data[id]
		if !q.Start.IsZero() && n.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && n.Timestamp.After(q.End) {
			continue
		}
		if q.Notification != "" && n.Notification != q.Notification {
			continue
		}
		result = append(result, n)
	}

	sort.Slice(result, func(a, b int) bool {
		var less bool
		switch q.SortField {
		case "notification":
			less = result[a].Notification < result[b].Notification
		default:
			less = result[a].Timestamp.Before(result[b].Timestamp)
		}
		if q.SortAsc {
			return less
		}
		return !less
	})

	if q.Skip > 0 {
		if q.Skip >= len(result) {
			return []entity.DeviceNotification{}, nil
		}
		result = result[q.Skip:]
	}
	if q.Take > 0 && q.Take < len(result) {
		result = result[:q.Take]
	}

	return result, nil
}

func (h *handler) GetNewerThan(ctx context.Context, deviceGUID string, since time.Time) ([]entity.DeviceNotification, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.DeviceNotification, 0)
	for id := range h.indexByDevice[deviceGUID] {
		n := h.data[id]
		if n.Timestamp.After(since) {
			result = append(result, n)
		}
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].Timestamp.Before(result[b].Timestamp)
	})

	return result, nil
}
