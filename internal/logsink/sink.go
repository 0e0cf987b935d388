package logsink

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// timeFormat matches the line prefix consumers parse: timestamp, level,
// message, separated by " - ".
const timeFormat = "2006-01-02 15:04:05.000"

// Sink is an append-only, mutex-guarded log file bound to one session.
// Writers serialize through the sink's lock; readers open independent
// handles via OpenReader and never block a writer.
type Sink struct {
	sessionID string
	path      string
	log       zerolog.Logger

	mu   sync.Mutex
	file *os.File
}

func openSink(sessionID, path string, logger zerolog.Logger) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return &Sink{
		sessionID: sessionID,
		path:      path,
		log:       logger,
		file:      f,
	}, nil
}

// SessionID returns the session this sink is bound to.
func (s *Sink) SessionID() string { return s.sessionID }

// Path returns the log file path for this sink.
func (s *Sink) Path() string { return s.path }

// Append writes one timestamped log entry. Multi-line messages are written
// as-is; each physical line is a separate event to stream consumers.
func (s *Sink) Append(level Level, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("log sink for session %s is closed", s.sessionID)
	}

	line := time.Now().Format(timeFormat) + " - " + string(level) + " - " + msg
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := s.file.WriteString(line); err != nil {
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	return nil
}

func (s *Sink) Debug(format string, args ...any) error {
	return s.Append(LevelDebug, fmt.Sprintf(format, args...))
}

func (s *Sink) Info(format string, args ...any) error {
	return s.Append(LevelInfo, fmt.Sprintf(format, args...))
}

func (s *Sink) Warning(format string, args ...any) error {
	return s.Append(LevelWarning, fmt.Sprintf(format, args...))
}

func (s *Sink) Error(format string, args ...any) error {
	return s.Append(LevelError, fmt.Sprintf(format, args...))
}

func (s *Sink) Critical(format string, args ...any) error {
	return s.Append(LevelCritical, fmt.Sprintf(format, args...))
}

// Truncate discards all content so the sink can be reused.
func (s *Sink) Truncate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("log sink for session %s is closed", s.sessionID)
	}
	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating %s: %w", s.path, err)
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return fmt.Errorf("rewinding %s: %w", s.path, err)
	}
	s.log.Info().Str("session", s.sessionID).Msg("log file cleared")
	return nil
}

// OpenReader returns a reader positioned at the start of the sink's content,
// independent of the writer's position.
func (s *Sink) OpenReader() (*Reader, error) {
	return openReader(s.path)
}

// Close releases the underlying file. Appends after Close fail; an in-flight
// reader keeps its own handle and drains what was already written.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
