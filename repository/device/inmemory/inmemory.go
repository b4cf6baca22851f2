package inmemory

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/desain-gratis/devicehub/repository/device"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
)

var (
	_ device.Repository      = &handler{}
	_ device.ClassRepository = &classHandler{}
)

type handler struct {
	mtx  *sync.Mutex
	data map[string]entity.Device
}

func New() *handler {
	return &handler{
		mtx:  &sync.Mutex{},
		data: make(map[string]entity.Device),
	}
}

func (h *handler) Upsert(ctx context.Context, d entity.Device) (entity.Device, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.data[d.GUID] = d
	return d, nil
}

func (h *handler) GetByGUID(ctx context.Context, guid string) (entity.Device, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	d, ok := h.data[guid]
	if !ok {
		return entity.Device{}, notFound("device", guid)
	}
	return d, nil
}

func (h *handler) List(ctx context.Context) ([]entity.Device, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.Device, 0, len(h.data))
	for _, d := range h.data {
		result = append(result, d)
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].GUID < result[b].GUID
	})
	return result, nil
}

func (h *handler) Delete(ctx context.Context, guid string) (entity.Device, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	d, ok := h.data[guid]
	if !ok {
		return entity.Device{}, notFound("device", guid)
	}
	delete(h.data, guid)
	return d, nil
}

type classHandler struct {
	mtx     *sync.Mutex
	counter int
	data    map[string]entity.DeviceClass
}

func NewClass() *classHandler {
	return &classHandler{
		mtx:  &sync.Mutex{},
		data: make(map[string]entity.DeviceClass),
	}
}

func (h *classHandler) Insert(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if c.ID == "" {
		h.counter++
		c.ID = strconv.Itoa(h.counter)
	}
	h.data[c.ID] = c
	return c, nil
}

func (h *classHandler) Update(ctx context.Context, c entity.DeviceClass) (entity.DeviceClass, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if _, ok := h.data[c.ID]; !ok {
		return entity.DeviceClass{}, notFound("device class", c.ID)
	}
	h.data[c.ID] = c
	return c, nil
}

func (h *classHandler) GetByID(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	c, ok := h.data[ID]
	if !ok {
		return entity.DeviceClass{}, notFound("device class", ID)
	}
	return c, nil
}

func (h *classHandler) List(ctx context.Context) ([]entity.DeviceClass, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	result := make([]entity.DeviceClass, 0, len(h.data))
	for _, c := range h.data {
		result = append(result, c)
	}
	sort.Slice(result, func(a, b int) bool {
		return result[a].ID < result[b].ID
	})
	return result, nil
}

func (h *classHandler) Delete(ctx context.Context, ID string) (entity.DeviceClass, *types.CommonError) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	c, ok := h.data[ID]
	if !ok {
		return entity.DeviceClass{}, notFound("device class", ID)
	}
	delete(h.data, ID)
	return c, nil
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
