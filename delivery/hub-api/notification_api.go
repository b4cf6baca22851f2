package hubapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/repository/notification"
	"github.com/desain-gratis/devicehub/types/entity"
)

// InsertNotification is the device pushing a notification up to its clients.
func (s *service) InsertNotification(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleDevice, authapi.RoleAdmin); !ok {
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

	var n entity.DeviceNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		handleError(w, "BAD_REQUEST", "failed to parse body", http.StatusBadRequest, nil)
		return
	}
	if n.Notification == "" {
		handleError(w, "BAD_REQUEST", "notification name is required", http.StatusBadRequest, nil)
		return
	}

	n.DeviceGUID = deviceGUID

	result, errUC := s.notifications.Submit(r.Context(), n)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	log.Debug().Msgf("notification insert proceed successfully. device = %v notification = %v", deviceGUID, result.ID)
	replySuccess(w, http.StatusCreated, result)
}

// GetNotification also serves GET .../notification/poll (see Register).
func (s *service) GetNotification(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if p.ByName("id") == "poll" {
		s.PollNotifications(w, r, p)
		return
	}

	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleAdmin); !ok {
		return
	}

	result, errUC := s.notifications.Get(r.Context(), deviceGUID, p.ByName("id"))
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func (s *service) QueryNotifications(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	if _, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleAdmin); !ok {
		return
	}

	q, ok := parseNotificationQuery(w, r)
	if !ok {
		return
	}

	result, errUC := s.notifications.Query(r.Context(), deviceGUID, q)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

// PollNotifications is the client-facing long poll over a device's notifications.
func (s *service) PollNotifications(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	deviceGUID := p.ByName("deviceGuid")
	identity, ok := s.authenticate(w, r, deviceGUID, authapi.RoleClient, authapi.RoleAdmin)
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
		since = time.Now().UTC()
	}
	timeout, ok := parseWaitTimeout(r, s.defaultWait, s.maxWait)
	if !ok {
		handleError(w, "BAD_REQUEST", "waitTimeout is not a valid number of seconds", http.StatusBadRequest, nil)
		return
	}

	if !s.allowPoll(w, r, identity.UserID, "notification-poll:"+deviceGUID) {
		return
	}

	result, errUC := s.notifications.Poll(r.Context(), deviceGUID, since, timeout)
	if errUC != nil {
		handleUCError(w, errUC)
		return
	}

	replySuccess(w, http.StatusOK, result)
}

func parseNotificationQuery(w http.ResponseWriter, r *http.Request) (notification.Query, bool) {
	var q notification.Query
	var ok bool

	if q.Start, ok = parseTimestamp(r, "start"); !ok {
		handleError(w, "BAD_REQUEST", "start is not valid RFC3339", http.StatusBadRequest, nil)
		return q, false
	}
	if q.End, ok = parseTimestamp(r, "end"); !ok {
		handleError(w, "BAD_REQUEST", "end is not valid RFC3339", http.StatusBadRequest, nil)
		return q, false
	}

	q.Notification = r.URL.Query().Get("notification")

	switch sortField := r.URL.Query().Get("sortField"); sortField {
	case "", "timestamp", "notification":
		q.SortField = sortField
	default:
		handleError(w, "BAD_REQUEST", "sortField must be timestamp or notification", http.StatusBadRequest, nil)
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
