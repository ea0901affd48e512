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

	router "github.com/avolkov/chatter/internal/adapters/http"
	wssignal "github.com/avolkov/chatter/internal/adapters/signal"
	"github.com/avolkov/chatter/internal/app"
	"github.com/avolkov/chatter/internal/config"
	"github.com/avolkov/chatter/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	users := store.NewMemory()
	registry := app.NewRegistry()
	presence := app.NewPresence(registry, users)
	calls := app.NewCallManager(registry)
	relay := app.NewRelay(registry, presence, calls)

	if cfg.RingTimeout > 0 {
		go func() {
			ticker := time.NewTicker(cfg.RingTimeout / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					calls.ExpireStale(cfg.RingTimeout)
				}
			}
		}()
		log.Info().Dur("ring_timeout", cfg.RingTimeout).Msg("call ring timeout enabled")
	}

	ctrl := wssignal.NewController(relay, cfg)
	api := &router.API{Registry: registry, Store: users}
	r := router.SetupRouter(ctx, cfg, ctrl, api)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Chatter relay started")
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
	log.Info().Msg("Server exited gracefully")
}
