package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/logstream/backend/internal/logsink"
	"github.com/logstream/backend/internal/stream"
)

// idleTimeout reads the idle_timeout query parameter (seconds). Values
// outside the configured bounds are rejected, not clamped.
func (s *Server) idleTimeout(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("idle_timeout")
	if raw == "" {
		return s.cfg.Stream.DefaultIdleTimeout, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid idle_timeout %q", raw)
	}
	return s.cfg.ValidateIdleTimeout(time.Duration(secs) * time.Second)
}

// openSessionReader resolves the session's sink and positions a fresh reader
// at the start of its content.
func (s *Server) openSessionReader(id string) (*logsink.Reader, error) {
	if _, ok := s.registry.Get(id); !ok {
		return nil, fmt.Errorf("session: %w", os.ErrNotExist)
	}
	sink, ok := s.registry.Sinks().Get(id)
	if !ok {
		return nil, fmt.Errorf("log file: %w", os.ErrNotExist)
	}
	return sink.OpenReader()
}

// handleStreamLogs streams the session's log over Server-Sent Events: one
// `data: <JSON-encoded line>` event per log line, until idle timeout,
// client disconnect, or process shutdown.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.registry.Touch(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := s.streamCtx(r)
	defer cancel()

	emit := func(line string) error {
		data, err := json.Marshal(line)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err = stream.Tail(ctx, reader, stream.Options{
		IdleTimeout: idle,
		PollQuantum: s.cfg.Stream.PollQuantum,
	}, emit)
	switch {
	case err == nil:
	case errors.Is(err, stream.ErrNotFound):
		// Headers are already out; the error frame emitted by Tail is all
		// the client sees.
		s.log.Warn().Str("session", id).Msg("log file vanished mid-stream")
	default:
		s.log.Error().Err(err).Str("session", id).Msg("log stream ended with fault")
	}
}
