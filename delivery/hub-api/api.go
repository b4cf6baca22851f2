package hubapi

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/repository/limiter"
	types "github.com/desain-gratis/devicehub/types/http"
	commanduc "github.com/desain-gratis/devicehub/usecase/command"
	deviceuc "github.com/desain-gratis/devicehub/usecase/device"
	notificationuc "github.com/desain-gratis/devicehub/usecase/notification"
)

type service struct {
	commands      commanduc.Usecase
	notifications notificationuc.Usecase
	devices       deviceuc.Usecase
	verifier      *authapi.Verifier

	pollLimiter limiter.Repository
	pollLimit   int
	pollWindow  time.Duration

	defaultWait time.Duration
	maxWait     time.Duration
}

type Config struct {
	// Polls per caller per window before 429; zero means unlimited.
	PollLimit  int
	PollWindow time.Duration

	DefaultWaitTimeout time.Duration
	MaxWaitTimeout     time.Duration
}

func New(
	commands commanduc.Usecase,
	notifications notificationuc.Usecase,
	devices deviceuc.Usecase,
	verifier *authapi.Verifier,
	pollLimiter limiter.Repository,
	cfg Config,
) *service {
	if cfg.DefaultWaitTimeout <= 0 {
		cfg.DefaultWaitTimeout = 30 * time.Second
	}
	if cfg.MaxWaitTimeout <= 0 {
		cfg.MaxWaitTimeout = 60 * time.Second
	}
	if cfg.PollWindow <= 0 {
		cfg.PollWindow = time.Minute
	}
	if pollLimiter == nil {
		pollLimiter = limiter.NewUnlimited()
	}

	return &service{
		commands:      commands,
		notifications: notifications,
		devices:       devices,
		verifier:      verifier,
		pollLimiter:   pollLimiter,
		pollLimit:     cfg.PollLimit,
		pollWindow:    cfg.PollWindow,
		defaultWait:   cfg.DefaultWaitTimeout,
		maxWait:       cfg.MaxWaitTimeout,
	}
}

func (s *service) Register(router *httprouter.Router) {
	router.GET("/device", s.ListDevices)
	router.PUT("/device/:deviceGuid", s.RegisterDevice)
	router.GET("/device/:deviceGuid", s.GetDevice)
	router.DELETE("/device/:deviceGuid", s.DeleteDevice)

	router.GET("/device-class", s.ListDeviceClasses)
	router.POST("/device-class", s.CreateDeviceClass)
	router.GET("/device-class/:id", s.GetDeviceClass)
	router.PUT("/device-class/:id", s.UpdateDeviceClass)
	router.DELETE("/device-class/:id", s.DeleteDeviceClass)

	router.POST("/device/:deviceGuid/command", s.InsertCommand)
	router.GET("/device/:deviceGuid/command", s.QueryCommands)
	// httprouter cannot register a static "poll" sibling next to ":id",
	// so GET .../command/poll is routed inside GetCommand
	router.GET("/device/:deviceGuid/command/:id", s.GetCommand)
	router.GET("/device/:deviceGuid/command/:id/poll", s.WaitCommandUpdate)
	router.PUT("/device/:deviceGuid/command/:id", s.UpdateCommand)

	router.POST("/device/:deviceGuid/notification", s.InsertNotification)
	router.GET("/device/:deviceGuid/notification", s.QueryNotifications)
	router.GET("/device/:deviceGuid/notification/:id", s.GetNotification)
}

// authenticate resolves the caller and checks role and device visibility.
// Writes the error response itself when it fails. A device may present either
// a bearer token or its Auth-DeviceID / Auth-DeviceKey header pair.
func (s *service) authenticate(w http.ResponseWriter, r *http.Request, deviceGUID string, roles ...string) (authapi.Identity, bool) {
	var identity authapi.Identity

	if r.Header.Get("Authorization") == "" && r.Header.Get("Auth-DeviceID") != "" {
		guid := r.Header.Get("Auth-DeviceID")
		d, errUC := s.devices.Get(r.Context(), guid)
		if errUC != nil || d.Key == "" || d.Key != r.Header.Get("Auth-DeviceKey") {
			handleError(w, "UNAUTHORIZED", "Device credentials are not valid", http.StatusUnauthorized, nil)
			return authapi.Identity{}, false
		}
		identity = authapi.Identity{UserID: guid, Role: authapi.RoleDevice, DeviceGUID: guid}
	} else {
		var err *types.CommonError
		identity, err = s.verifier.ParseAuthorizationToken(r.Header.Get("Authorization"))
		if err != nil {
			handleUCError(w, err)
			return authapi.Identity{}, false
		}
	}

	allowedRole := false
	for _, role := range roles {
		if identity.Role == role {
			allowedRole = true
			break
		}
	}
	if !allowedRole {
		handleError(w, "FORBIDDEN", "Your role is not allowed for this API", http.StatusForbidden, nil)
		return authapi.Identity{}, false
	}

	if deviceGUID != "" && !identity.Allowed(deviceGUID) {
		handleError(w, "FORBIDDEN", "You have no access to this device", http.StatusForbidden, nil)
		return authapi.Identity{}, false
	}

	return identity, true
}

// allowPoll applies the per-caller poll rate limit.
func (s *service) allowPoll(w http.ResponseWriter, r *http.Request, callerID, key string) bool {
	if s.pollLimit <= 0 {
		return true
	}

	counter, _, err := s.pollLimiter.Get(r.Context(), callerID, key)
	if err != nil {
		// limiter outage must not take polling down with it
		return true
	}
	if counter >= s.pollLimit {
		handleError(w, "TOO_MANY_REQUESTS", "Poll limit reached, slow down", http.StatusTooManyRequests, nil)
		return false
	}
	_ = s.pollLimiter.Increment(r.Context(), callerID, key, s.pollWindow)
	return true
}
