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

	router "github.com/avekas/parley/internal/adapters/http"
	"github.com/avekas/parley/internal/adapters/ws"
	"github.com/avekas/parley/internal/app"
	"github.com/avekas/parley/internal/app/orch"
	"github.com/avekas/parley/internal/auth"
	"github.com/avekas/parley/internal/config"
	"github.com/avekas/parley/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

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

	st, err := store.Open(cfg.DataDir, cfg.HistoryLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	registry := app.NewRegistry()
	rooms := app.NewIndex()
	presence := app.NewPresence(cfg.TypingTTL, cfg.TypingDebounce)
	orchestrator := orch.New(registry, rooms, presence, st, app.SimplePolicy{})

	sweepStop := make(chan struct{})
	go presence.Run(sweepStop)

	tokens := auth.NewTokens(cfg.Secret, cfg.TokenTTL)
	handlers := router.NewHandlers(orchestrator, st, tokens, cfg)
	wsCtl := ws.NewController(orchestrator, cfg)

	r := router.SetupRouter(ctx, cfg, handlers, wsCtl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("parley server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	close(sweepStop)
	orchestrator.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
