// Package stream tails a session log sink and pushes each new line to a
// caller-supplied emit function until idle timeout or shutdown.
package stream

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrNotFound reports that the log artifact disappeared underneath the
// consumer. The HTTP layer maps it to a 404.
var ErrNotFound = errors.New("log file not found")

// ErrResource wraps any other read fault. The HTTP layer maps it to a 500.
var ErrResource = errors.New("log read fault")

const (
	defaultPollQuantum = 100 * time.Millisecond
	defaultIdleTimeout = 300 * time.Second
)

// LineReader is the sink read handle a consumer tails. ok is false when no
// complete line is currently available.
type LineReader interface {
	ReadLine() (line string, ok bool, err error)
}

type Options struct {
	// IdleTimeout ends the stream after this long without a new line. Zero
	// selects the 300s default.
	IdleTimeout time.Duration
	// PollQuantum is the sleep between polls when no data is available.
	// Zero selects the 100ms default.
	PollQuantum time.Duration
}

// Tail polls r for new lines and hands each one to emit. The stream ends in
// exactly one of three ways:
//
//   - idle timeout: one timeout frame is emitted, Tail returns nil;
//   - ctx cancelled (client gone or process shutdown): Tail returns nil
//     within one poll quantum, emitting nothing further;
//   - read fault: one error frame is emitted and Tail returns ErrNotFound
//     or ErrResource.
//
// An emit failure terminates the stream with that error. Absence of data is
// never treated as end-of-stream; only the idle-timeout policy ends a
// healthy tail.
func Tail(ctx context.Context, r LineReader, opts Options, emit func(string) error) error {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.PollQuantum <= 0 {
		opts.PollQuantum = defaultPollQuantum
	}

	lastActive := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, ok, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				emit(fmt.Sprintf("Log file not found: %v", err))
				return ErrNotFound
			}
			emit(fmt.Sprintf("Error reading log file: %v", err))
			return fmt.Errorf("%w: %v", ErrResource, err)
		}

		if ok {
			if err := emit(line); err != nil {
				return err
			}
			lastActive = time.Now()
			continue
		}

		if time.Since(lastActive) > opts.IdleTimeout {
			emit("Connection timed out due to inactivity.")
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(opts.PollQuantum):
		}
	}
}
