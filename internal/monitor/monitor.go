// Package monitor runs the per-session background sampling loop that turns
// system metrics into classified session log lines.
package monitor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/logstream/backend/internal/logsink"
	"github.com/logstream/backend/internal/metrics"
)

const (
	defaultStopGrace = 2 * time.Second
	defaultJitter    = 500 * time.Millisecond
)

// genericErrors is the message pool for error-family lines when no threshold
// condition applies.
var genericErrors = []string{
	"Failed to process request due to resource limitations",
	"Background task terminated unexpectedly",
	"Database connection timeout",
	"Cache synchronization failed",
}

type Options struct {
	// StopGrace bounds how long Stop waits for the loop to exit. Zero
	// selects the 2s default.
	StopGrace time.Duration
	// Jitter is the maximum deviation applied to the sampling interval in
	// either direction. Negative disables jitter; zero selects the 500ms
	// default.
	Jitter time.Duration
	Logger zerolog.Logger
}

// Monitor is the background producer for one session's log sink. It is
// either Idle or Running; Start and Stop are idempotent. A Monitor is not
// restarted in place: callers replace a stopped Monitor with a fresh one.
type Monitor struct {
	sink    *logsink.Sink
	sampler metrics.Sampler
	grace   time.Duration
	jitter  time.Duration
	log     zerolog.Logger
	rng     *rand.Rand

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

func New(sink *logsink.Sink, sampler metrics.Sampler, opts Options) *Monitor {
	if opts.StopGrace == 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.Jitter == 0 {
		opts.Jitter = defaultJitter
	}
	if opts.Jitter < 0 {
		opts.Jitter = 0
	}
	return &Monitor{
		sink:    sink,
		sampler: sampler,
		grace:   opts.StopGrace,
		jitter:  opts.Jitter,
		log:     opts.Logger.With().Str("component", "monitor").Str("session", sink.SessionID()).Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Running reports whether the sampling loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the sampling loop. Starting a running monitor is a no-op.
// The loop also exits when ctx is cancelled, which is how process-wide
// shutdown reaches monitors that were never individually stopped.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.quit = make(chan struct{})
	m.done = make(chan struct{})
	go m.loop(ctx, interval, m.quit, m.done)

	if err := m.sink.Info("Started system monitoring with interval: %s", interval); err != nil {
		m.log.Error().Err(err).Msg("writing start announcement")
	}
}

// Stop signals the loop and waits up to the grace period for it to exit,
// returning whether the monitor was actually running. The join is
// best-effort: a loop mid-sleep past the grace period is abandoned rather
// than blocking the caller.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	m.running = false
	close(m.quit)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(m.grace):
		m.log.Warn().Msg("sampling loop did not exit within grace period")
	}

	if err := m.sink.Info("Stopped system monitoring"); err != nil {
		m.log.Error().Err(err).Msg("writing stop announcement")
	}
	return true
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, quit, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		snap, err := m.sampler.Sample()
		if err != nil {
			// Sampling failure never terminates the loop; back off a full
			// interval and try again.
			m.log.Error().Err(err).Msg("sampling failed")
			if !m.sleep(ctx, quit, interval) {
				return
			}
			continue
		}

		m.logSample(snap)

		d := interval
		if m.jitter > 0 {
			d += time.Duration((m.rng.Float64()*2 - 1) * float64(m.jitter))
		}
		if !m.sleep(ctx, quit, d) {
			return
		}
	}
}

// sleep pauses for d, returning false when the loop should exit instead.
func (m *Monitor) sleep(ctx context.Context, quit chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-quit:
		return false
	case <-ctx.Done():
		return false
	}
}

// logSample writes one classified line for the snapshot. The severity family
// is picked by a fixed weighted distribution (70% info, 20% warning, 10%
// error); the message within the family follows the classification
// thresholds.
func (m *Monitor) logSample(s *metrics.Snapshot) {
	var err error
	r := m.rng.Float64()
	switch {
	case r < 0.7:
		err = m.sink.Info("%s", s.Report())
	case r < 0.9:
		err = m.logWarning(s)
	default:
		err = m.logError(s)
	}
	if err != nil {
		m.log.Error().Err(err).Msg("appending log line")
	}
}

func (m *Monitor) logWarning(s *metrics.Snapshot) error {
	switch {
	case s.RAMPercent > 80:
		return m.sink.Warning("High memory usage detected: %.1f%%", s.RAMPercent)
	case s.Load1 > 2:
		return m.sink.Warning("High system load detected: %.2f", s.Load1)
	case s.CPUPercent > 50:
		return m.sink.Warning("High CPU usage detected: %.1f%%", s.CPUPercent)
	default:
		return m.sink.Warning("Potential resource contention.\n  RAM: %.1f%%\n  Load: %.2f", s.RAMPercent, s.Load1)
	}
}

func (m *Monitor) logError(s *metrics.Snapshot) error {
	switch {
	case s.RAMPercent > 95:
		return m.sink.Critical("Critical memory pressure: %.1f%%", s.RAMPercent)
	case s.RAMPercent > 90:
		return m.sink.Error("Critical memory pressure: %.1f%%", s.RAMPercent)
	case s.Load1 > 8:
		return m.sink.Critical("System overloaded: %.2f", s.Load1)
	case s.Load1 > 4:
		return m.sink.Error("System overloaded: %.2f", s.Load1)
	default:
		return m.sink.Error("%s", genericErrors[m.rng.Intn(len(genericErrors))])
	}
}
