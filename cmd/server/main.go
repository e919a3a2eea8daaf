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

	router "github.com/dkeye/Stream/internal/adapters/http"
	"github.com/dkeye/Stream/internal/adapters/presence"
	sig "github.com/dkeye/Stream/internal/adapters/signal"
	"github.com/dkeye/Stream/internal/config"
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
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	store, closeStore, err := openPresence(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open presence store")
	}
	defer closeStore()

	limiter := sig.NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateInterval)
	ctl := sig.NewSignalWSController(store, limiter, sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	})

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("presence", cfg.Presence.Backend).Msg("Stream broker started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func openPresence(ctx context.Context, cfg *config.Config) (presence.Store, func(), error) {
	switch cfg.Presence.Backend {
	case "memory", "":
		return presence.NewMemory(cfg.Presence.TTL), func() {}, nil
	case "redis":
		client, err := presence.Connect(ctx, presence.RedisConfig(cfg.Redis))
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("presence backed by redis")
		return presence.NewRedis(client, cfg.Presence.TTL), func() { _ = client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown presence backend %q", cfg.Presence.Backend)
}
