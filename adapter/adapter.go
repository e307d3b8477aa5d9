// Package adapter defines how phase completions are announced to
// downstream systems.
//
// The phase controller publishes one PhaseCompletedEvent per finished
// phase, successful or not. Publish failures are logged by the caller and
// never fail the phase.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// EventTypePhaseCompleted is the event_type of every published event.
const EventTypePhaseCompleted = "phase_completed"

// DefaultBackoff is the delay before the first retry. It doubles per attempt.
const DefaultBackoff = 500 * time.Millisecond

// PhaseCompletedEvent is the payload published when a phase finishes.
type PhaseCompletedEvent struct {
	EventType  string `json:"event_type"`
	RunID      string `json:"run_id"`
	Phase      string `json:"phase"`
	Mode       string `json:"mode,omitempty"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	Chunks     int64  `json:"chunks"`
	Items      int64  `json:"items"`
	Vertices   int64  `json:"vertices"`
	Edges      int64  `json:"edges"`
	Logs       int64  `json:"logs"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

// Adapter publishes phase completion events.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation.
	Publish(ctx context.Context, event *PhaseCompletedEvent) error
	Close() error
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes an event as JSON.
func Marshal(event *PhaseCompletedEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("nil event")
	}
	return json.Marshal(event)
}

// Unmarshal decodes an event published by Marshal.
func Unmarshal(data []byte) (*PhaseCompletedEvent, error) {
	var event PhaseCompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string { return p.Err.Error() }

// Unwrap returns the wrapped error.
func (p *Permanent) Unwrap() error { return p.Err }

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts, starting at backoff. It stops early on success, on a
// *Permanent error, or when ctx is done.
func Retry(ctx context.Context, retries int, backoff time.Duration, fn func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	attempts := 1 + max(retries, 0)

	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context canceled: %w", err)
		}
		if i > 0 {
			timer := time.NewTimer(backoff << (i - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("context canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *Permanent
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("non-retriable error: %w", perm.Err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
