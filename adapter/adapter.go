// Package adapter defines the notification boundary for finished
// sessions.
//
// Adapters publish session completion notifications to downstream
// systems. The CLI owns adapter lifecycle; users provide configuration
// only.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/tlist/clock"
)

// EventTypeSessionCompleted is the event_type of every published event.
const EventTypeSessionCompleted = "session_completed"

// Session outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeStopped  = "stopped"
	OutcomeFailed   = "failed"
)

// SessionCompletedEvent is the payload published when a session finishes.
type SessionCompletedEvent struct {
	Version     string `json:"version"`
	EventType   string `json:"event_type"` // always "session_completed"
	SessionID   string `json:"session_id"`
	Detector    string `json:"detector"`
	Day         string `json:"day"`
	Outcome     string `json:"outcome"` // complete, stopped, failed
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
	SummaryPath string `json:"summary_path"`
	StoragePath string `json:"storage_path,omitempty"`
	Timestamp   string `json:"timestamp"` // RFC 3339
	TotalEvents uint64 `json:"total_events"`
	Chunks      int    `json:"chunks"`
	Anomalies   int    `json:"anomalies"`
	DurationMs  int64  `json:"duration_ms"`
}

// Adapter publishes session completion events to a downstream system.
type Adapter interface {
	// Publish sends a session completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *SessionCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. Each further retry
// doubles it.
const BaseBackoff = 500 * time.Millisecond

// Backoff returns the delay before retry attempt i (1-based).
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * BaseBackoff
}

// Retry calls fn up to 1+retries times, sleeping on clk between
// attempts. It stops early when fn's error satisfies permanent.
// name prefixes returned errors.
func Retry(ctx context.Context, clk clock.Clock, name string, retries int, permanent func(error) bool, fn func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-clk.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
