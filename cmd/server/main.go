package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/groupchat/internal/adapters/auth"
	router "github.com/dkeye/groupchat/internal/adapters/http"
	"github.com/dkeye/groupchat/internal/adapters/natsbus"
	"github.com/dkeye/groupchat/internal/adapters/postgres"
	"github.com/dkeye/groupchat/internal/adapters/push"
	"github.com/dkeye/groupchat/internal/adapters/redis"
	"github.com/dkeye/groupchat/internal/app"
	"github.com/dkeye/groupchat/internal/app/orch"
	"github.com/dkeye/groupchat/internal/config"
	"github.com/dkeye/groupchat/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	verifier, err := auth.NewJWTVerifier(auth.DefaultOptions([]byte(cfg.JWTSecret)))
	if err != nil {
		log.Fatal().Err(err).Msg("jwt verifier")
	}

	var (
		store    core.MessageStore
		presence core.PresenceStore
		mirror   app.Mirror
		pusher   core.Pusher
	)

	var pg *postgres.Store
	if cfg.DatabaseURL != "" {
		pg, err = postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres")
		}
		defer pg.Close()
		store = pg
	}

	switch cfg.PresenceBackend {
	case config.PresencePostgres:
		presence = pg
	case config.PresenceRedis:
		rs, err := redis.Dial(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.PresenceTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rs.Close()
		presence = rs
	default:
		presence = app.NewMemoryPresenceStore()
	}

	if cfg.NATS.URL != "" {
		m, err := natsbus.Connect(natsbus.Config{URL: cfg.NATS.URL, SubjectPrefix: cfg.NATS.SubjectPrefix})
		if err != nil {
			log.Error().Err(err).Msg("nats mirror disabled")
		} else {
			defer m.Close()
			mirror = m
		}
	}

	if cfg.Push.Enabled {
		fcm, err := push.NewFCM(ctx, cfg.Push.CredentialsFile)
		if err != nil {
			// the realtime core does not depend on push
			log.Error().Err(err).Msg("push disabled")
		} else {
			pusher = fcm
		}
	}

	reg := app.NewRegistry()
	rooms := app.NewRoomTracker()
	bus := app.NewBroadcaster(rooms, reg, app.SimplePolicy{}, mirror)
	notifier := app.NewNotifier(store, pusher, cfg.Push.Timeout)

	propagator := app.NewPresencePropagator(reg, presence, bus)
	if cfg.PresenceBackend == config.PresenceRedis && cfg.Redis.PresenceTTL > 0 {
		// online records expire in redis; renew them well before they do
		go propagator.RunRefresh(ctx, cfg.Redis.PresenceTTL/2)
	}

	o := &orch.Orchestrator{
		Registry:    reg,
		Rooms:       rooms,
		Bus:         bus,
		Presence:    propagator,
		Auth:        verifier,
		Store:       store,
		TypingLimit: app.NewRateLimiter(cfg.Typing.Limit, cfg.Typing.Interval),
	}

	r := router.SetupRouter(ctx, cfg, &router.API{
		Orch:     o,
		Store:    store,
		Notifier: notifier,
		Auth:     verifier,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("chat server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	notifier.Wait()
	log.Info().Msg("Server exited gracefully")
}
