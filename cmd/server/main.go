package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/logstream/backend/internal/config"
	"github.com/logstream/backend/internal/logsink"
	"github.com/logstream/backend/internal/metrics"
	"github.com/logstream/backend/internal/server"
	"github.com/logstream/backend/internal/session"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	// Structured logging from environment, console format for humans.
	level, err := zerolog.ParseLevel(os.Getenv("LOGSTREAM_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if os.Getenv("LOGSTREAM_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("loading config")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	sinks, err := logsink.NewStore(cfg.Logs.Dir, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("preparing logs directory")
	}
	registry := session.NewRegistry(sinks, log.Logger)
	sampler := metrics.NewSystemSampler()

	// ctx is the process-wide shutdown signal. Cancellation is terminal:
	// every monitor loop and stream tail observes it and exits promptly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := server.New(cfg, registry, sampler, ctx, cancel, log.Logger)

	err = server.ListenAndServe(ctx, cfg, srv.Handler(), log.Logger)

	// Tear down sessions before the process exits, whatever stopped the
	// server.
	stats := registry.ShutdownAll()
	log.Info().
		Int("monitors_stopped", stats.MonitorsStopped).
		Int("sessions_cleared", stats.SessionsCleared).
		Int("logs_deleted", stats.LogsDeleted).
		Msg("cleanup complete")

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
