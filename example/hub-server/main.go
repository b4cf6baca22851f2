package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	authapi "github.com/desain-gratis/devicehub/delivery/auth-api"
	hubapi "github.com/desain-gratis/devicehub/delivery/hub-api"
	wsapi "github.com/desain-gratis/devicehub/delivery/ws-api"
	"github.com/desain-gratis/devicehub/lib/dispatch"
	commandrepo "github.com/desain-gratis/devicehub/repository/command"
	commandinmemory "github.com/desain-gratis/devicehub/repository/command/inmemory"
	commandpostgres "github.com/desain-gratis/devicehub/repository/command/postgres"
	devicerepo "github.com/desain-gratis/devicehub/repository/device"
	deviceinmemory "github.com/desain-gratis/devicehub/repository/device/inmemory"
	devicepostgres "github.com/desain-gratis/devicehub/repository/device/postgres"
	"github.com/desain-gratis/devicehub/repository/limiter"
	limiterredis "github.com/desain-gratis/devicehub/repository/limiter/redis"
	notificationrepo "github.com/desain-gratis/devicehub/repository/notification"
	notificationinmemory "github.com/desain-gratis/devicehub/repository/notification/inmemory"
	notificationpostgres "github.com/desain-gratis/devicehub/repository/notification/postgres"
	commanduc "github.com/desain-gratis/devicehub/usecase/command"
	deviceuc "github.com/desain-gratis/devicehub/usecase/device"
	notificationuc "github.com/desain-gratis/devicehub/usecase/notification"
	"github.com/desain-gratis/devicehub/utility/config"
	"github.com/desain-gratis/devicehub/utility/pg"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Logger()
}

func main() {
	var c, address string
	flag.StringVar(&c, "c", "config.yaml", "config path")
	flag.StringVar(&address, "address", "", "api bind address, overrides config")
	flag.Parse()

	cfg := config.Load(c)
	if address != "" {
		cfg.Address = address
	}

	var (
		commandRepo      commandrepo.Repository
		notificationRepo notificationrepo.Repository
		deviceRepo       devicerepo.Repository
		classRepo        devicerepo.ClassRepository
	)
	if cfg.Postgres.Conn != "" {
		db, err := pg.GetConnection(cfg.Postgres.Conn)
		if err != nil {
			log.Panic().Msgf("failed to connect to postgres: %v", err)
		}
		commandRepo = commandpostgres.New(db, "device_command")
		notificationRepo = notificationpostgres.New(db, "device_notification")
		deviceRepo = devicepostgres.New(db, "device")
		classRepo = devicepostgres.NewClass(db, "device_class")
		log.Info().Msgf("using postgres repositories")
	} else {
		commandRepo = commandinmemory.New()
		notificationRepo = notificationinmemory.New()
		deviceRepo = deviceinmemory.New()
		classRepo = deviceinmemory.NewClass()
		log.Info().Msgf("using in-memory repositories")
	}

	var pollLimiter limiter.Repository
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pollLimiter = limiterredis.New(client)
		log.Info().Msgf("poll rate limiter backed by redis at %v", cfg.Redis.Addr)
	} else {
		pollLimiter = limiter.NewUnlimited()
	}

	hub := dispatch.NewHub(cfg.Poll.MaxWaitTimeout())

	commands := commanduc.New(commandRepo, hub)
	notifications := notificationuc.New(notificationRepo, hub)
	devices := deviceuc.New(deviceRepo, classRepo)

	verifier := authapi.NewVerifier([]byte(cfg.Auth.JWTSecret))

	router := httprouter.New()

	restAPI := hubapi.New(commands, notifications, devices, verifier, pollLimiter, hubapi.Config{
		PollLimit:          cfg.Poll.Limit,
		PollWindow:         cfg.Poll.Window(),
		DefaultWaitTimeout: cfg.Poll.DefaultWaitTimeout(),
		MaxWaitTimeout:     cfg.Poll.MaxWaitTimeout(),
	})
	restAPI.Register(router)

	wsAPI := wsapi.New(commands, notifications, devices, verifier, hub, wsapi.Config{
		OriginPatterns: cfg.WS.OriginPatterns,
		PingInterval:   cfg.WS.PingInterval(),
	})
	wsAPI.Register(router)

	// global cors handling
	router.HandleOPTIONS = true
	router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	withCors := func(router http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()
			header.Set("Access-Control-Allow-Methods", header.Get("Allow"))
			header.Set("Access-Control-Allow-Origin", "*")
			header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			router.ServeHTTP(w, r)
		})
	}

	ctx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	g, gctx := errgroup.WithContext(ctx)
	monitor := deviceuc.NewMonitor(deviceRepo, classRepo, time.Minute)
	g.Go(func() error {
		return monitor.Run(gctx)
	})

	server := http.Server{
		Addr:        cfg.Address,
		Handler:     withCors(router),
		ReadTimeout: 2 * time.Second,

		// important: do not set WriteTimeout, long polls and websocket
		// connections outlive any sane value

		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint
		log.Info().Msgf("SIGINT received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		log.Info().Msgf("Shutting down HTTP server..")
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msgf("HTTP server Shutdown")
		}

		cancelApp()
		close(idleConnsClosed)
	}()

	log.Info().Msgf("Serving at %v..", cfg.Address)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Msgf("HTTP server ListenAndServe: %v", err)
	}

	<-idleConnsClosed
	if err := g.Wait(); err != nil {
		log.Err(err).Msgf("background worker exited")
	}
	log.Info().Msgf("Bye bye")
}
