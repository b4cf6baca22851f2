package inmemory

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/desain-gratis/devicehub/repository/command"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

var _ command.Repository = &handler{}

// To emulate DB. Commands are copied in and out; the stored value is never
// shared with callers.
type handler struct {
	mtx     *sync.Mutex
	counter int

	indexByDevice map[string]map[string]struct{}
	data          map[string]entity.DeviceCommand
}

func New() *handler {
	return &handler{
		mtx:           &sync.Mutex{},
		indexByDevice: make(map[string]map[string]struct{}),
		data:          make(map[string]entity.DeviceCommand),
	}
}

func (h *handler) Insert(ctx context.Context, cmd entity.DeviceCommand) (entity.DeviceCommand, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if cmd.ID == "" {
		h.counter++
		cmd.ID = strconv.Itoa(h.counter)
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}

	h.data[cmd.ID] = cmd
	if _, ok := h.indexByDevice[cmd.DeviceGUID]; !ok {
		h.indexByDevice[cmd.DeviceGUID] = make(map[string]struct{})
	}
	h.indexByDevice[cmd.DeviceGUID][cmd.ID] = struct{}{}

	return cmd, nil
}

func (h *handler) Update(ctx context.Context, deviceGUID string, update entity.DeviceCommandUpdate) (entity.DeviceCommand, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	cmd, ok := h.data[update.ID]
	if !ok || cmd.DeviceGUID != deviceGUID {
		return entity.DeviceCommand{}, notFound("command", update.ID)
	}

	if update.Status != nil {
		cmd.Status = *update.Status
	}
	if update.Result != nil {
		cmd.Result = *update.Result
	}
	cmd.EntityVersion++
	h.data[update.ID] = cmd

	return cmd, nil
}

func (h *handler) GetByID(ctx context.Context, deviceGUID, ID string) (entity.DeviceCommand, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	cmd, ok := h.data[ID]
	if !ok || cmd.DeviceGUID != deviceGUID {
		return entity.DeviceCommand{}, notFound("command", ID)
	}
	return cmd, nil
}

func (h *handler) QueryByDevice(ctx context.Context, deviceGUID string, q command.Query) ([]entity.DeviceCommand, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.DeviceCommand, 0)
	for id := range h.indexByDevice[deviceGUID] {
		cmd := h.data[id]
		if !q.Start.IsZero() && cmd.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && cmd.Timestamp.After(q.End) {
			continue
		}
		if q.Command != "" && cmd.Command != q.Command {
			continue
		}
		if q.Status != "" && cmd.Status != q.Status {
			continue
		}
		result = append(result, cmd)
	}

	sort.Slice(result, func(a, b int) bool {
		var less bool
		switch q.SortField {
		case "command":
			less = result[a].Command < result[b].Command
		case "status":
			less = result[a].Status < result[b].Status
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
			return []entity.DeviceCommand{}, nil
		}
		result = result[q.Skip:]
	}
	if q.Take > 0 && q.Take < len(result) {
		result = result[:q.Take]
	}

	return result, nil
}

func (h *handler) GetNewerThan(ctx context.Context, deviceGUID string, since time.Time) ([]entity.DeviceCommand, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.DeviceCommand, 0)
	for id := range h.indexByDevice[deviceGUID] {
		cmd := h.data[id]
		if cmd.Timestamp.After(since) {
			result = append(result, cmd)
		}
	}

	sort.Slice(result, func(a, b int) bool {
		return result[a].Timestamp.Before(result[b].Timestamp)
	})

	return result, nil
}

func notFound(kind, id string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{
				HTTPCode: http.StatusNotFound,
				Code:     "NOT_FOUND",
				Message:  "No " + kind + " with ID '" + id + "'",
			},
		},
	}
}
