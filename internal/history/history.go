// Package history exports service lifecycle events to external stores.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventSpawn          EventType = "spawn"
	EventSpawnFailed    EventType = "spawn_failed"
	EventExit           EventType = "exit"
	EventRestart        EventType = "restart_scheduled"
	EventStateChange    EventType = "state_change"
	EventForcedKill     EventType = "forced_kill"
	EventStopRequested  EventType = "stop_requested"
	EventStopIncomplete EventType = "stop_incomplete"
)

// Event is one lifecycle event of a wrapped service.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	RunID      string    `json:"run_id,omitempty"`
	PID        int       `json:"pid,omitempty"`
	State      string    `json:"state"`
	Outcome    string    `json:"outcome,omitempty"`
	ExitCode   int       `json:"exit_code"`
	DelayMS    int64     `json:"delay_ms,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
