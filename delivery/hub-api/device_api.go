package hubapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/types/entity"
)

func (s *service) ListDevices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, ok := s.authenticate(w, r, "", authapi.RoleClient, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.devices.List(r.Context())
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

// RegisterDevice is a PUT: it creates the device when unknown, overwrites it
// when already registered. A device may register itself.
func (s *service) RegisterDevice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleDevice, authapi.RoleAdmin); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maximumRequestLength)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, "SERVER_ERROR", "failed to read payload", http.StatusInternalServerError, err)
		return
	}

	var d entity.Device
	if err := json.Unmarshal(payload, &d); err != nil {
		handleError(w, "BAD_REQUEST", "failed to parse body", http.StatusBadRequest, nil)
		return
	}
	d.GUID = deviceGUID

	_, existedErr := s.devices.Get(r.Context(), deviceGUID)

	result, errUC := s.devices.Register(r.Context(), d)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	status := http.StatusOK
	if existedErr != nil {
		status = http.StatusCreated
	}

	log.Debug().Msgf("device register proceed successfully. device = %v", deviceGUID)
	replySuccess(w, status, result)
}

func (s *service) GetDevice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleDevice, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.devices.Get(r.Context(), deviceGUID)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func (s *service) DeleteDevice(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.devices.Delete(r.Context(), deviceGUID)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	log.Debug().Msgf("device delete proceed successfully. device = %v", deviceGUID)
	replySuccess(w, http.StatusOK, result)
}

func (s *service) ListDeviceClasses(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, ok := s.authenticate(w, r, "", authapi.RoleClient, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.devices.ListClasses(r.Context())
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func (s *service) CreateDeviceClass(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if _, ok := s.authenticate(w, r, "", authapi.RoleAdmin); !ok {
		return
	}

	c, ok := parseDeviceClass(w, r)
	if !ok {
		return
	}

	result, errUC := s.devices.CreateClass(r.Context(), c)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusCreated, result)
}

func (s *service) GetDeviceClass(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if _, ok := s.authenticate(w, r, "", authapi.RoleClient, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.devices.GetClass(r.Context(), p.ByName("id"))
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func (s *service) UpdateDeviceClass(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if _, ok := s.authenticate(w, r, "", authapi.RoleAdmin); !ok {
		return
	}

	c, ok := parseDeviceClass(w, r)
	if !ok {
		return
	}
	c.ID = p.ByName("id")

	result, errUC := s.devices.UpdateClass(r.Context(), c)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func (s *service) DeleteDeviceClass(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if _, ok := s.authenticate(w, r, "", authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.devices.DeleteClass(r.Context(), p.ByName("id"))
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func parseDeviceClass(w http.ResponseWriter, r *http.Request) (entity.DeviceClass, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maximumRequestLength)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, "SERVER_ERROR", "failed to read payload", http.StatusInternalServerError, err)
		return entity.DeviceClass{}, false
	}

	var c entity.DeviceClass
	if err := json.Unmarshal(payload, &c); err != nil {
		handleError(w, "BAD_REQUEST", "failed to parse body", http.StatusBadRequest, nil)
		return entity.DeviceClass{}, false
	}
	return c, true
}
