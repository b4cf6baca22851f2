package hubapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/repository/command"
	"github.com/desain-gratis/devicehub/types/entity"
)

// InsertCommand stores a new client command for the device and wakes every
// subscriber polling or listening for it.
func (s *service) InsertCommand(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	identity, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleAdmin)
	if !ok {
		return
	}

	if _, err := s.devices.Get(r.Context(), deviceGUID); err != nil {
		handleUCError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maximumRequestLength)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, "SERVER_ERROR", "failed to read payload", http.StatusInternalServerError, err)
		return
	}

	var cmd entity.DeviceCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		handleError(w, "BAD_REQUEST", "failed to parse body", http.StatusBadRequest, nil)
		return
	}
	if cmd.Command == "" {
		handleError(w, "BAD_REQUEST", "command name is required", http.StatusBadRequest, nil)
		return
	}

	cmd.DeviceGUID = deviceGUID
	cmd.UserID = identity.UserID

	result, errUC := s.commands.Submit(r.Context(), cmd)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	log.Debug().Msgf("command insert proceed successfully. device = %v command = %v", deviceGUID, result.ID)
	replySuccess(w, http.StatusCreated, result)
}

// GetCommand also serves GET .../command/poll (see Register).
func (s *service) GetCommand(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if p.ByName("id") == "poll" {
		s.PollCommands(w, r, p)
		return
	}

	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleDevice, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.commands.Get(r.Context(), deviceGUID, p.ByName("id"))
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func (s *service) QueryCommands(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleDevice, authapi.RoleAdmin); !ok {
		return
	}

	q, ok := parseCommandQuery(w, r)
	if !ok {
		return
	}

	result, errUC := s.commands.Query(r.Context(), deviceGUID, q)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

// PollCommands is the device-facing long poll: block up to waitTimeout until
// a command newer than timestamp exists. Timeout is success with an empty
// list, never an error.
func (s *service) PollCommands(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	identity, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleDevice, authapi.RoleAdmin)
	if !ok {
		return
	}

	if _, err := s.devices.Get(r.Context(), deviceGUID); err != nil {
		handleUCError(w, err)
		return
	}

	since, ok := parseTimestamp(r, "timestamp")
	if !ok {
		handleError(w, "BAD_REQUEST", "timestamp is not valid RFC3339", http.StatusBadRequest, nil)
		return
	}
	if since.IsZero() {
		// no timestamp means "only things newer than now"
		since = time.Now().UTC()
	}
	timeout, ok := parseWaitTimeout(r, s.defaultWait, s.maxWait)
	if !ok {
		handleError(w, "BAD_REQUEST", "waitTimeout is not a valid number of seconds", http.StatusBadRequest, nil)
		return
	}

	if !s.allowPoll(w, r, identity.UserID+"|"+identity.DeviceGUID, "command-poll:"+deviceGUID) {
		return
	}

	result, errUC := s.commands.Poll(r.Context(), deviceGUID, since, timeout)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

// WaitCommandUpdate blocks up to waitTimeout until the device reports
// status/result for the command. Empty success body when it never does.
func (s *service) WaitCommandUpdate(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	identity, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleAdmin)
	if !ok {
		return
	}

	if _, err := s.devices.Get(r.Context(), deviceGUID); err != nil {
		handleUCError(w, err)
		return
	}

	timeout, ok := parseWaitTimeout(r, s.defaultWait, s.maxWait)
	if !ok {
		handleError(w, "BAD_REQUEST", "waitTimeout is not a valid number of seconds", http.StatusBadRequest, nil)
		return
	}

	if !s.allowPoll(w, r, identity.UserID, "command-wait:"+p.ByName("id")) {
		return
	}

	result, errUC := s.commands.WaitForUpdate(r.Context(), deviceGUID, p.ByName("id"), timeout)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

// UpdateCommand is the device reporting execution status/result back.
func (s *service) UpdateCommand(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleDevice, authapi.RoleAdmin); !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maximumRequestLength)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		handleError(w, "SERVER_ERROR", "failed to read payload", http.StatusInternalServerError, err)
		return
	}

	var update entity.DeviceCommandUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		handleError(w, "BAD_REQUEST", "failed to parse body", http.StatusBadRequest, nil)
		return
	}
	update.ID = p.ByName("id")

	if _, errUC := s.commands.Update(r.Context(), deviceGUID, update); errUC != nil {
		handleUCError(w, errUC)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseCommandQuery(w http.ResponseWriter, r *http.Request) (command.Query, bool) {
	var q command.Query
	var ok bool

	if q.Start, ok = parseTimestamp(r, "start"); !ok {
		handleError(w, "BAD_REQUEST", "start is not valid RFC3339", http.StatusBadRequest, nil)
		return q, false
	}
	if q.End, ok = parseTimestamp(r, "end"); !ok {
		handleError(w, "BAD_REQUEST", "end is not valid RFC3339", http.StatusBadRequest, nil)
		return q, false
	}

	q.Command = r.URL.Query().Get("command")
	q.Status = r.URL.Query().Get("status")

	switch sortField := r.URL.Query().Get("sortField"); sortField {
	case "", "timestamp", "command", "status":
		q.SortField = sortField
	default:
		handleError(w, "BAD_REQUEST", "sortField must be timestamp, command or status", http.StatusBadRequest, nil)
		return q, false
	}
	q.SortAsc = r.URL.Query().Get("sortOrder") == "ASC"

	if q.Take, ok = parseInt(r, "take"); !ok {
		handleError(w, "BAD_REQUEST", "take is not a valid number", http.StatusBadRequest, nil)
		return q, false
	}
	if q.Skip, ok = parseInt(r, "skip"); !ok {
		handleError(w, "BAD_REQUEST", "skip is not a valid number", http.StatusBadRequest, nil)
		return q, false
	}

	return q, true
}
