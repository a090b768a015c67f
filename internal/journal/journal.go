// Package journal persists supervision lifecycle events so operators can
// reconstruct what happened to a worker set after the fact. Recording is
// best-effort everywhere: a journal failure must never affect a worker.
package journal

import (
	"context"
	"time"
)

// EventType is the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"    // worker process spawned
	EventExit    EventType = "exit"     // worker process exited
	EventGivenUp EventType = "given_up" // crash streak cap reached
	EventSkipped EventType = "skipped"  // singleton lock already held
	EventReaped  EventType = "reaped"   // process terminated by the reaper
)

// Event is one supervision event.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Worker     string    `json:"worker"` // empty for reaper events
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for supervision events. Implementations must be
// safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, e Event) error
	Close() error
}
