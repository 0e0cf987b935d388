package logsink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Store is the keyed single-instance cache of sinks: at most one Sink exists
// per session identifier at a time. Opening an identifier that already has a
// sink returns the existing instance (optionally cleared), never a duplicate.
type Store struct {
	dir string
	log zerolog.Logger

	mu    sync.Mutex
	sinks map[string]*Sink
}

func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir %s: %w", dir, err)
	}
	return &Store{
		dir:   dir,
		log:   logger.With().Str("component", "logsink").Logger(),
		sinks: make(map[string]*Sink),
	}, nil
}

// Path returns the deterministic log file path for a session identifier.
func (st *Store) Path(sessionID string) string {
	return filepath.Join(st.dir, "session_"+sessionID+".log")
}

// Open retrieves the sink for sessionID, creating it on first reference.
// With clearExisting set, an already-open sink is truncated instead of
// recreated.
func (st *Store) Open(sessionID string, clearExisting bool) (*Sink, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sinks[sessionID]; ok {
		if clearExisting {
			if err := s.Truncate(); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	s, err := openSink(sessionID, st.Path(sessionID), st.log)
	if err != nil {
		return nil, err
	}
	if clearExisting {
		if err := s.Truncate(); err != nil {
			s.Close()
			return nil, err
		}
	}
	st.sinks[sessionID] = s
	return s, nil
}

// Get returns the sink for sessionID if one is open.
func (st *Store) Get(sessionID string) (*Sink, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sinks[sessionID]
	return s, ok
}

// Remove closes the sink for sessionID and deletes its log file. Removing an
// unknown identifier is a no-op.
func (st *Store) Remove(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sinks[sessionID]; ok {
		s.Close()
		delete(st.sinks, sessionID)
	}
	path := st.Path(sessionID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		st.log.Error().Err(err).Str("path", path).Msg("removing log file")
	}
}

// RemoveAll closes every sink and deletes every log file in the store's
// directory, returning the number of files deleted.
func (st *Store) RemoveAll() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	for id, s := range st.sinks {
		s.Close()
		delete(st.sinks, id)
	}

	entries, err := os.ReadDir(st.dir)
	if err != nil {
		st.log.Error().Err(err).Str("dir", st.dir).Msg("reading logs dir")
		return 0
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		path := filepath.Join(st.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			st.log.Error().Err(err).Str("path", path).Msg("removing log file")
			continue
		}
		deleted++
	}
	st.log.Info().Int("deleted", deleted).Msg("log files removed")
	return deleted
}
