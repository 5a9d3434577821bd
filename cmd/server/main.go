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

	router "github.com/dkeye/Call/internal/adapters/http"
	"github.com/dkeye/Call/internal/adapters/rtc"
	"github.com/dkeye/Call/internal/adapters/signalws"
	"github.com/dkeye/Call/internal/app"
	"github.com/dkeye/Call/internal/config"
	"github.com/dkeye/Call/internal/core"
	"github.com/dkeye/Call/internal/domain"
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
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// The rtc engine is process-wide and must exist before any session.
	if err := rtc.Init(); err != nil {
		log.Fatal().Err(err).Msg("rtc engine init")
	}
	defer rtc.Shutdown()

	hub := signalws.NewHub()

	var mgr *app.Manager
	factory := &rtc.Factory{
		ICEServers: cfg.ICEServers,
		Stats: func(room domain.RoomID, remote domain.ParticipantID, kbps float64) {
			if s, ok := mgr.Get(room); ok {
				s.RecordSample(app.Sample{Participant: remote, BitrateKbps: kbps})
			}
		},
	}

	sink := core.EventSinkFunc(func(e core.Event) {
		log.Info().Str("module", "events").Str("kind", string(e.Kind)).
			Str("room", string(e.Room)).Str("participant", string(e.Participant)).
			Str("state", e.State).Msg("session event")
	})

	mgr = app.NewManager(factory, hub, sink, app.Options{
		NegotiationTimeout: cfg.NegotiationTimeout,
		TokenTTL:           cfg.TokenTTL,
		TokenSecret:        cfg.Secret,
		RecordingDir:       cfg.RecordingDir,
	})

	r := router.SetupRouter(ctx, cfg, mgr, hub)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
