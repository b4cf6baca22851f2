package wsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	"github.com/desain-gratis/devicehub/lib/dispatch"
	commanduc "github.com/desain-gratis/devicehub/usecase/command"
	deviceuc "github.com/desain-gratis/devicehub/usecase/device"
	notificationuc "github.com/desain-gratis/devicehub/usecase/notification"
)

const apiVersion = "2.0.0"

type endpoint string

const (
	endpointClient endpoint = "client"
	endpointDevice endpoint = "device"
)

type service struct {
	commands      commanduc.Usecase
	notifications notificationuc.Usecase
	devices       deviceuc.Usecase
	verifier      *authapi.Verifier
	hub           *dispatch.Hub

	originPatterns []string
	pingInterval   time.Duration
}

type Config struct {
	// Origins allowed to upgrade, e.g. "http://localhost:*".
	OriginPatterns []string

	// Liveness sweep period; a peer failing a ping is torn down.
	PingInterval time.Duration
}

func New(
	commands commanduc.Usecase,
	notifications notificationuc.Usecase,
	devices deviceuc.Usecase,
	verifier *authapi.Verifier,
	hub *dispatch.Hub,
	cfg Config,
) *service {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	return &service{
		commands:       commands,
		notifications:  notifications,
		devices:        devices,
		verifier:       verifier,
		hub:            hub,
		originPatterns: cfg.OriginPatterns,
		pingInterval:   cfg.PingInterval,
	}
}

func (s *service) Register(router *httprouter.Router) {
	router.GET("/websocket/client", s.ServeClient)
	router.GET("/websocket/device", s.ServeDevice)
}

func (s *service) ServeClient(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.serve(w, r, endpointClient)
}

func (s *service) ServeDevice(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.serve(w, r, endpointDevice)
}

// wsConn adapts a websocket connection to the write side the engine expects.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Write(ctx context.Context, payload []byte) error {
	return w.c.Write(ctx, websocket.MessageText, payload)
}

// connState is owned by the reader goroutine; frames of one connection are
// handled strictly in arrival order.
type connState struct {
	endpoint      endpoint
	identity      authapi.Identity
	authenticated bool
}

func (st *connState) hasRole(roles ...string) bool {
	if !st.authenticated {
		return false
	}
	for _, role := range roles {
		if st.identity.Role == role {
			return true
		}
	}
	return false
}

func (s *service) serve(w http.ResponseWriter, r *http.Request, ep endpoint) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		log.Error().Msgf("error accept %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "connection torn down")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := s.hub.NewSession(&wsConn{c: c})
	defer session.Close()

	state := &connState{endpoint: ep}
	if identity, errAuth := s.verifier.ParseAuthorizationToken(r.Header.Get("Authorization")); errAuth == nil {
		state.identity = identity
		state.authenticated = true
	}
	if !state.authenticated && r.Header.Get("Auth-DeviceID") != "" {
		guid := r.Header.Get("Auth-DeviceID")
		if d, errUC := s.devices.Get(r.Context(), guid); errUC == nil && d.Key != "" && d.Key == r.Header.Get("Auth-DeviceKey") {
			state.identity = authapi.Identity{UserID: guid, Role: authapi.RoleDevice, DeviceGUID: guid}
			state.authenticated = true
		}
	}

	// liveness sweep; a dead peer holds subscriptions hostage otherwise
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
				err := c.Ping(pingCtx)
				pingCancel()
				if err != nil {
					log.Info().Msgf("session %v: ping failed, tearing down", session.ID())
					cancel()
					return
				}
			}
		}
	}()

	for {
		_, payload, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Err(err).Msgf("session %v: read failed", session.ID())
			}
			return
		}

		s.handleFrame(ctx, session, state, payload)
	}
}
