package wsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/lib/dispatch"
	"github.com/desain-gratis/devicehub/types/entity"
	types "github.com/desain-gratis/devicehub/types/http"
	commanduc "github.com/desain-gratis/devicehub/usecase/command"
	notificationuc "github.com/desain-gratis/devicehub/usecase/notification"
)

func (s *service) handleFrame(ctx context.Context, session *dispatch.Session, state *connState, payload []byte) {
	var req request
	if err := json.Unmarshal(payload, &req); err != nil {
		s.reply(ctx, session, response{
			Status:  statusError,
			Code:    http.StatusBadRequest,
			Message: "failed to parse frame",
		})
		return
	}

	switch req.Action {
	case actionAuthenticate:
		s.authenticate(ctx, session, state, req)
	case actionServerInfo:
		s.serverInfo(ctx, session, req)
	case actionCommandInsert:
		s.commandInsert(ctx, session, state, req)
	case actionCommandUpdate:
		s.commandUpdate(ctx, session, state, req)
	case actionCommandSubscribe:
		s.commandSubscribe(ctx, session, state, req)
	case actionCommandUnsubscribe:
		s.unsubscribe(ctx, session, state, req)
	case actionNotificationInsert:
		s.notificationInsert(ctx, session, state, req)
	case actionNotificationSubscribe:
		s.notificationSubscribe(ctx, session, state, req)
	case actionNotificationUnsubscribe:
		s.unsubscribe(ctx, session, state, req)
	default:
		s.replyError(ctx, session, req, http.StatusBadRequest, "unknown action")
	}
}

func (s *service) authenticate(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	identity, err := s.verifier.ParseAuthorizationToken("Bearer " + req.Token)
	if err != nil {
		s.replyError(ctx, session, req, http.StatusUnauthorized, "token is expired or not valid")
		return
	}

	state.identity = identity
	state.authenticated = true

	s.reply(ctx, session, response{
		Action:    req.Action,
		RequestID: req.RequestID,
		Status:    statusSuccess,
	})
}

func (s *service) serverInfo(ctx context.Context, session *dispatch.Session, req request) {
	s.reply(ctx, session, response{
		Action:    req.Action,
		RequestID: req.RequestID,
		Status:    statusSuccess,
		Info: &serverInfo{
			APIVersion:      apiVersion,
			ServerTimestamp: time.Now().UTC(),
		},
	})
}

func (s *service) commandInsert(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	if state.endpoint != endpointClient {
		s.replyError(ctx, session, req, http.StatusBadRequest, "action is not available on this endpoint")
		return
	}
	if !state.hasRole(authapi.RoleClient, authapi.RoleAdmin) {
		s.replyError(ctx, session, req, http.StatusForbidden, "your role is not allowed for this action")
		return
	}
	if req.Command == nil || req.Command.Command == "" {
		s.replyError(ctx, session, req, http.StatusBadRequest, "command name is required")
		return
	}

	deviceGUID := req.DeviceGUID
	if _, errUC := s.devices.Get(ctx, deviceGUID); errUC != nil {
		s.replyError(ctx, session, req, http.StatusNotFound, "device is not registered")
		return
	}

	cmd := *req.Command
	cmd.DeviceGUID = deviceGUID
	cmd.UserID = state.identity.UserID

	stored, errUC := s.commands.Submit(ctx, cmd)
	if errUC != nil {
		s.replyUCError(ctx, session, req, errUC)
		return
	}

	s.reply(ctx, session, response{
		Action:     req.Action,
		RequestID:  req.RequestID,
		Status:     statusSuccess,
		DeviceGUID: deviceGUID,
		Command:    &stored,
	})
}

func (s *service) commandUpdate(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	if state.endpoint != endpointDevice {
		s.replyError(ctx, session, req, http.StatusBadRequest, "action is not available on this endpoint")
		return
	}
	if !state.hasRole(authapi.RoleDevice, authapi.RoleAdmin) {
		s.replyError(ctx, session, req, http.StatusForbidden, "your role is not allowed for this action")
		return
	}

	deviceGUID := s.resolveDevice(state, req)
	if deviceGUID == "" || !state.identity.Allowed(deviceGUID) {
		s.replyError(ctx, session, req, http.StatusForbidden, "you have no access to this device")
		return
	}
	if req.Update == nil || req.CommandID == "" {
		s.replyError(ctx, session, req, http.StatusBadRequest, "commandId and update are required")
		return
	}

	update := *req.Update
	update.ID = req.CommandID

	stored, errUC := s.commands.Update(ctx, deviceGUID, update)
	if errUC != nil {
		s.replyUCError(ctx, session, req, errUC)
		return
	}

	s.reply(ctx, session, response{
		Action:     req.Action,
		RequestID:  req.RequestID,
		Status:     statusSuccess,
		DeviceGUID: deviceGUID,
		Command:    &stored,
	})
}

func (s *service) commandSubscribe(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	if !state.hasRole(authapi.RoleClient, authapi.RoleDevice, authapi.RoleAdmin) {
		s.replyError(ctx, session, req, http.StatusForbidden, "your role is not allowed for this action")
		return
	}

	deviceGUID := s.resolveDevice(state, req)
	if deviceGUID == "" || !state.identity.Allowed(deviceGUID) {
		s.replyError(ctx, session, req, http.StatusForbidden, "you have no access to this device")
		return
	}
	if _, errUC := s.devices.Get(ctx, deviceGUID); errUC != nil {
		s.replyError(ctx, session, req, http.StatusNotFound, "device is not registered")
		return
	}

	subscriptionID := s.hub.RegisterPushSubscription(
		commanduc.DeviceKey(deviceGUID),
		session,
		commandPushEncoder(deviceGUID),
	)
	if subscriptionID == "" {
		// session already closed under us
		return
	}

	log.Debug().Msgf("session %v: command subscription %v on device %v", session.ID(), subscriptionID, deviceGUID)
	s.reply(ctx, session, response{
		Action:         req.Action,
		RequestID:      req.RequestID,
		Status:         statusSuccess,
		SubscriptionID: subscriptionID,
	})
}

func (s *service) notificationInsert(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	if state.endpoint != endpointDevice {
		s.replyError(ctx, session, req, http.StatusBadRequest, "action is not available on this endpoint")
		return
	}
	if !state.hasRole(authapi.RoleDevice, authapi.RoleAdmin) {
		s.replyError(ctx, session, req, http.StatusForbidden, "your role is not allowed for this action")
		return
	}

	deviceGUID := s.resolveDevice(state, req)
	if deviceGUID == "" || !state.identity.Allowed(deviceGUID) {
		s.replyError(ctx, session, req, http.StatusForbidden, "you have no access to this device")
		return
	}
	if req.Notification == nil || req.Notification.Notification == "" {
		s.replyError(ctx, session, req, http.StatusBadRequest, "notification name is required")
		return
	}
	if _, errUC := s.devices.Get(ctx, deviceGUID); errUC != nil {
		s.replyError(ctx, session, req, http.StatusNotFound, "device is not registered")
		return
	}

	n := *req.Notification
	n.DeviceGUID = deviceGUID

	stored, errUC := s.notifications.Submit(ctx, n)
	if errUC != nil {
		s.replyUCError(ctx, session, req, errUC)
		return
	}

	s.reply(ctx, session, response{
		Action:       req.Action,
		RequestID:    req.RequestID,
		Status:       statusSuccess,
		DeviceGUID:   deviceGUID,
		Notification: &stored,
	})
}

func (s *service) notificationSubscribe(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	if !state.hasRole(authapi.RoleClient, authapi.RoleAdmin) {
		s.replyError(ctx, session, req, http.StatusForbidden, "your role is not allowed for this action")
		return
	}

	deviceGUID := req.DeviceGUID
	if deviceGUID == "" {
		s.replyError(ctx, session, req, http.StatusBadRequest, "deviceGuid is required")
		return
	}
	if _, errUC := s.devices.Get(ctx, deviceGUID); errUC != nil {
		s.replyError(ctx, session, req, http.StatusNotFound, "device is not registered")
		return
	}

	subscriptionID := s.hub.RegisterPushSubscription(
		notificationuc.DeviceKey(deviceGUID),
		session,
		notificationPushEncoder(deviceGUID),
	)
	if subscriptionID == "" {
		return
	}

	log.Debug().Msgf("session %v: notification subscription %v on device %v", session.ID(), subscriptionID, deviceGUID)
	s.reply(ctx, session, response{
		Action:         req.Action,
		RequestID:      req.RequestID,
		Status:         statusSuccess,
		SubscriptionID: subscriptionID,
	})
}

// unsubscribe covers both command and notification subscriptions; removal by
// request id is idempotent, an unknown id is still a success.
func (s *service) unsubscribe(ctx context.Context, session *dispatch.Session, state *connState, req request) {
	if !state.authenticated {
		s.replyError(ctx, session, req, http.StatusUnauthorized, "authenticate first")
		return
	}
	if req.SubscriptionID == "" {
		s.replyError(ctx, session, req, http.StatusBadRequest, "subscriptionId is required")
		return
	}

	session.Unsubscribe(req.SubscriptionID)
	s.reply(ctx, session, response{
		Action:    req.Action,
		RequestID: req.RequestID,
		Status:    statusSuccess,
	})
}

// resolveDevice falls back to the device's own guid when the frame omits it.
func (s *service) resolveDevice(state *connState, req request) string {
	if req.DeviceGUID != "" {
		return req.DeviceGUID
	}
	if state.identity.Role == authapi.RoleDevice {
		return state.identity.DeviceGUID
	}
	return ""
}

func commandPushEncoder(deviceGUID string) func(ev dispatch.Event) ([]byte, error) {
	return func(ev dispatch.Event) ([]byte, error) {
		cmd, ok := ev.Payload.(entity.DeviceCommand)
		if !ok {
			return nil, dispatch.ErrNoEncoder
		}
		return json.Marshal(&response{
			Action:     actionCommandInsert,
			Status:     statusSuccess,
			DeviceGUID: deviceGUID,
			Command:    &cmd,
		})
	}
}

func notificationPushEncoder(deviceGUID string) func(ev dispatch.Event) ([]byte, error) {
	return func(ev dispatch.Event) ([]byte, error) {
		n, ok := ev.Payload.(entity.DeviceNotification)
		if !ok {
			return nil, dispatch.ErrNoEncoder
		}
		return json.Marshal(&response{
			Action:       actionNotificationInsert,
			Status:       statusSuccess,
			DeviceGUID:   deviceGUID,
			Notification: &n,
		})
	}
}

func (s *service) reply(ctx context.Context, session *dispatch.Session, resp response) {
	payload, err := json.Marshal(&resp)
	if err != nil {
		log.Err(err).Msgf("failed to serialize frame")
		return
	}
	if err := session.Write(ctx, payload); err != nil {
		log.Debug().Msgf("session %v: write failed: %v", session.ID(), err)
	}
}

func (s *service) replyError(ctx context.Context, session *dispatch.Session, req request, code int, message string) {
	s.reply(ctx, session, response{
		Action:    req.Action,
		RequestID: req.RequestID,
		Status:    statusError,
		Code:      code,
		Message:   message,
	})
}

func (s *service) replyUCError(ctx context.Context, session *dispatch.Session, req request, errUC *types.CommonError) {
	code := http.StatusInternalServerError
	message := "server encounter an error"
	if len(errUC.Errors) > 0 {
		if errUC.Errors[0].HTTPCode != 0 {
			code = errUC.Errors[0].HTTPCode
		}
		message = errUC.Errors[0].Message
	}
	s.replyError(ctx, session, req, code, message)
}
