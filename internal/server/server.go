// Package server exposes the session and log-streaming API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/logstream/backend/internal/config"
	"github.com/logstream/backend/internal/metrics"
	"github.com/logstream/backend/internal/session"
)

type Server struct {
	cfg      *config.Config
	registry *session.Registry
	sampler  metrics.Sampler
	log      zerolog.Logger

	// baseCtx is the process-wide shutdown signal: once cancelled, every
	// in-flight stream exits within one poll quantum.
	baseCtx  context.Context
	shutdown func()

	upgrader websocket.Upgrader
}

// New wires the API server. shutdown is invoked by the /shutdown endpoint to
// request process termination; baseCtx is cancelled when that shutdown (or a
// signal) lands.
func New(cfg *config.Config, registry *session.Registry, sampler metrics.Sampler, baseCtx context.Context, shutdown func(), logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		sampler:  sampler,
		log:      logger.With().Str("component", "server").Logger(),
		baseCtx:  baseCtx,
		shutdown: shutdown,
		upgrader: websocket.Upgrader{
			// The HTTP API is open to any origin, so the WS tail is too.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/", s.handleRoot)
	r.Post("/shutdown", s.handleShutdown)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
		r.Post("/sessions/{sessionID}/start-monitoring", s.handleStartMonitoring)
		r.Post("/sessions/{sessionID}/stop-monitoring", s.handleStopMonitoring)
		r.Get("/sessions/{sessionID}/logs", s.handleStreamLogs)
		r.Post("/sessions/{sessionID}/logs", s.handleAddLog)
		r.Get("/sessions/{sessionID}/ws", s.handleWSLogs)
		r.Post("/clear-logs", s.handleClearLogs)
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encoding response")
	}
}

// streamCtx derives a context that ends when either the request goes away or
// the process-wide shutdown signal fires.
func (s *Server) streamCtx(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		select {
		case <-s.baseCtx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// ListenAndServe runs srv until baseCtx is cancelled, then drains it within
// the configured shutdown timeout.
func ListenAndServe(ctx context.Context, cfg *config.Config, handler http.Handler, logger zerolog.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
