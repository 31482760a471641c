package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/buzzer/go/internal/buzzer/config"
	"github.com/mcdev12/buzzer/go/internal/buzzer/events"
	"github.com/mcdev12/buzzer/go/internal/buzzer/gateway"
	"github.com/mcdev12/buzzer/go/internal/buzzer/registry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load(os.Getenv("BUZZER_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Log)

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, closePublisher := setupPublisher(ctx, cfg.NATS)
	defer closePublisher()

	sessions := registry.New(ctx, registry.Config{
		MaxTimer:  cfg.MaxTimer(),
		Publisher: publisher,
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Uint64("max_timer_sec", cfg.Session.MaxTimerSeconds).
		Msg("starting buzzer gateway")

	gatewayService := gateway.NewService(cfg, sessions)
	if err := gatewayService.Start(ctx); err != nil {
		log.Error().Err(err).Msg("gateway service failed")
		stop()
	}

	// sessions publish their close events while shutting down; keep the
	// publisher open until they are done
	waitCtx, cancelWait := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelWait()
	if err := sessions.Wait(waitCtx); err != nil {
		log.Warn().Err(err).Msg("sessions did not finish before shutdown timeout")
	}

	log.Info().Int("live_sessions", sessions.Len()).Msg("buzzer gateway shutdown complete")
}

func setupLogging(cfg config.LogConfig) {
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("level", cfg.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// setupPublisher returns the JetStream publisher when NATS is enabled, otherwise
// lifecycle events only go to the debug log.
func setupPublisher(ctx context.Context, cfg config.NATSConfig) (events.Publisher, func()) {
	if !cfg.Enabled {
		return events.NewLogPublisher(), func() {}
	}

	jsConfig := events.DefaultJetStreamConfig()
	jsConfig.URL = cfg.URL
	jsConfig.StreamName = cfg.StreamName
	jsConfig.SubjectPrefix = cfg.SubjectPrefix

	publisher, err := events.NewJetStreamPublisher(ctx, jsConfig)
	if err != nil {
		log.Fatal().Err(err).Str("nats_url", cfg.URL).Msg("failed to create event publisher")
	}

	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}
}
