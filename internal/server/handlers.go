package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/logstream/backend/internal/logsink"
	"github.com/logstream/backend/internal/monitor"
	"github.com/logstream/backend/internal/session"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to the Log Streaming API",
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.log.Info().Msg("shutdown requested over HTTP")
	s.shutdown()
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Shutdown initiated"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()

	if _, err := s.registry.Register(id); err != nil {
		if errors.Is(err, session.ErrDuplicateSession) {
			http.Error(w, "session id collision", http.StatusConflict)
			return
		}
		s.log.Error().Err(err).Str("session", id).Msg("registering session")
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	if sink, err := s.registry.Sinks().Open(id, false); err == nil {
		sink.Info("Session created with ID: %s", id)
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.Sessions())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	s.registry.Unregister(id)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Session %s deleted", id),
	})
}

func (s *Server) handleStartMonitoring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	interval := s.cfg.Monitor.DefaultInterval
	if raw := r.URL.Query().Get("interval"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			http.Error(w, "invalid interval", http.StatusBadRequest)
			return
		}
		interval = time.Duration(secs) * time.Second
	}

	sink, err := s.registry.Sinks().Open(id, false)
	if err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("opening sink")
		http.Error(w, "failed to open session log", http.StatusInternalServerError)
		return
	}

	// A monitor is replaced rather than restarted, stop-then-start: the
	// previous loop quiesces and announces its stop before the replacement
	// announces itself, so at most one producer is ever live per sink.
	s.registry.StopMonitor(id)
	mon := monitor.New(sink, s.sampler, monitor.Options{
		StopGrace: s.cfg.Monitor.StopGrace,
		Logger:    s.log,
	})
	mon.Start(s.baseCtx, interval)
	if err := s.registry.AttachMonitor(id, mon); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	s.registry.Touch(id)

	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Started monitoring for session %s", id),
	})
}

func (s *Server) handleStopMonitoring(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	msg := fmt.Sprintf("Monitoring was not active for session %s", id)
	if s.registry.StopMonitor(id) {
		s.registry.Touch(id)
		msg = fmt.Sprintf("Stopped monitoring for session %s", id)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

type addLogRequest struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func (s *Server) handleAddLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := s.registry.Get(id); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	var req addLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sink, err := s.registry.Sinks().Open(id, false)
	if err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("opening sink")
		http.Error(w, "failed to open session log", http.StatusInternalServerError)
		return
	}
	if err := sink.Append(logsink.ParseLevel(req.Level), req.Message); err != nil {
		s.log.Error().Err(err).Str("session", id).Msg("appending log")
		http.Error(w, "failed to append log", http.StatusInternalServerError)
		return
	}

	s.registry.Touch(id)
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "Log added successfully"})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	stats := s.registry.ShutdownAll()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("All logs have been cleared. Deleted %d files.", stats.LogsDeleted),
		"details": stats,
	})
}
