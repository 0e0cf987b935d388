package server

import (
	"errors"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/logstream/backend/internal/stream"
)

// handleWSLogs serves the same live tail as the SSE endpoint over a
// WebSocket: each log line is one text frame containing the JSON-encoded
// line. The tail ends on idle timeout, client disconnect, or shutdown.
func (s *Server) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	idle, err := s.idleTimeout(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reader, err := s.openSessionReader(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("session", id).Msg("opening log reader")
		http.Error(w, "failed to open session log", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	s.registry.Touch(id)
	s.log.Info().Str("session", id).Str("remote", r.RemoteAddr).Msg("ws tail connected")

	ctx, cancel := s.streamCtx(r)
	defer cancel()

	// Drain the read side so close frames from the client end the tail.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = stream.Tail(ctx, reader, stream.Options{
		IdleTimeout: idle,
		PollQuantum: s.cfg.Stream.PollQuantum,
	}, func(line string) error {
		return conn.WriteJSON(line)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session", id).Msg("ws tail ended with fault")
	}
	s.log.Info().Str("session", id).Str("remote", r.RemoteAddr).Msg("ws tail disconnected")
}
