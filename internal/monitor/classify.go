package monitor

import (
	"github.com/logstream/backend/internal/logsink"
	"github.com/logstream/backend/internal/metrics"
)

// Classify maps a snapshot to the severity its figures warrant. The
// thresholds are fixed so classification is deterministic for a given
// snapshot:
//
//	RAM > 95%              critical
//	90% < RAM <= 95%       error
//	load1 > 8              critical
//	load1 > 4              error
//	RAM > 80% or load1 > 2 or CPU > 50%   warning
//	otherwise              info
func Classify(s *metrics.Snapshot) logsink.Level {
	switch {
	case s.RAMPercent > 95:
		return logsink.LevelCritical
	case s.RAMPercent > 90:
		return logsink.LevelError
	case s.Load1 > 8:
		return logsink.LevelCritical
	case s.Load1 > 4:
		return logsink.LevelError
	case s.RAMPercent > 80 || s.Load1 > 2 || s.CPUPercent > 50:
		return logsink.LevelWarning
	default:
		return logsink.LevelInfo
	}
}
