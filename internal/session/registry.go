// Package session tracks registered log sessions and the monitors attached
// to them. The Registry is the single source of truth: every mutation of the
// session and monitor collections runs as one critical section under one
// lock, so a session can never be observed without a consistent monitor
// state.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/logstream/backend/internal/logsink"
	"github.com/logstream/backend/internal/monitor"
)

// ErrDuplicateSession is returned when registering an identifier that is
// already present. Callers generate fresh identifiers, so hitting this is a
// caller bug rather than a normal condition.
var ErrDuplicateSession = errors.New("session already registered")

// ErrNotFound is returned by operations that require an existing session.
var ErrNotFound = errors.New("session not found")

// ShutdownStats reports what ShutdownAll tore down.
type ShutdownStats struct {
	MonitorsStopped int `json:"monitors_stopped"`
	SessionsCleared int `json:"sessions_cleared"`
	LogsDeleted     int `json:"logs_deleted"`
}

type Registry struct {
	sinks *logsink.Store
	log   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	monitors map[string]*monitor.Monitor
}

func NewRegistry(sinks *logsink.Store, logger zerolog.Logger) *Registry {
	return &Registry{
		sinks:    sinks,
		log:      logger.With().Str("component", "registry").Logger(),
		sessions: make(map[string]*Session),
		monitors: make(map[string]*monitor.Monitor),
	}
}

// Sinks exposes the registry-owned sink store.
func (r *Registry) Sinks() *logsink.Store {
	return r.sinks
}

// Register creates the session record and its cleared log sink.
func (r *Registry) Register(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return nil, ErrDuplicateSession
	}
	if _, err := r.sinks.Open(id, true); err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.sessions[id] = s
	r.log.Info().Str("session", id).Msg("registered session")

	out := *s
	return &out, nil
}

// Unregister stops any attached monitor, removes the session record, and
// deletes the session's log artifact. It reports whether the session
// existed; unregistering an unknown identifier is a harmless no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopMonitorLocked(id)

	_, existed := r.sessions[id]
	if existed {
		delete(r.sessions, id)
		r.log.Info().Str("session", id).Msg("unregistered session")
	}
	r.sinks.Remove(id)
	return existed
}

// AttachMonitor registers mon for the session, replacing (and stopping) any
// monitor already attached. If the session no longer exists — a delete can
// race the caller's existence check — mon is stopped and ErrNotFound
// returned, so no producer is ever left running for an absent session.
func (r *Registry) AttachMonitor(id string, mon *monitor.Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		mon.Stop()
		return ErrNotFound
	}

	r.stopMonitorLocked(id)
	r.monitors[id] = mon
	s.Monitoring = true
	r.log.Info().Str("session", id).Msg("registered monitor")
	return nil
}

// StopMonitor stops and detaches the session's monitor, reporting whether
// one was actually stopped.
func (r *Registry) StopMonitor(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopMonitorLocked(id)
}

func (r *Registry) stopMonitorLocked(id string) bool {
	mon, ok := r.monitors[id]
	if !ok {
		return false
	}
	mon.Stop()
	delete(r.monitors, id)
	if s, ok := r.sessions[id]; ok {
		s.Monitoring = false
	}
	r.log.Info().Str("session", id).Msg("stopped monitor")
	return true
}

// ShutdownAll stops every monitor, clears both collections, and deletes all
// log artifacts. It runs as one critical section, so it acts as a barrier
// with respect to concurrent register/unregister calls.
func (r *Registry) ShutdownAll() ShutdownStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := ShutdownStats{
		SessionsCleared: len(r.sessions),
	}

	for id := range r.monitors {
		if r.stopMonitorLocked(id) {
			stats.MonitorsStopped++
		}
	}
	r.monitors = make(map[string]*monitor.Monitor)
	r.sessions = make(map[string]*Session)

	stats.LogsDeleted = r.sinks.RemoveAll()

	r.log.Info().
		Int("monitors_stopped", stats.MonitorsStopped).
		Int("sessions_cleared", stats.SessionsCleared).
		Int("logs_deleted", stats.LogsDeleted).
		Msg("shutdown complete")
	return stats
}

// Get returns a copy of the session record.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Sessions returns an immutable snapshot of all session records.
func (r *Registry) Sessions() map[string]Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = *s
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Touch updates the session's last-activity timestamp. Touching an unknown
// identifier is a no-op: activity pings racing with deletion are expected.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.LastActivity = time.Now()
	return true
}
