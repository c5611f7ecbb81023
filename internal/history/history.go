// Package history exports server lifecycle events to analytics stores.
package history

import (
	"context"
	"log/slog"
	"time"
)

// EventType is the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
	EventUpdate  EventType = "update"
	EventBackup  EventType = "backup"
	EventEvict   EventType = "evict"
	EventRestore EventType = "restore"
)

// Event is one lifecycle event of the managed server.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	Port       int       `json:"port"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewEvent stamps an event with the current time and the error text, if any.
func NewEvent(t EventType, pid, port int, detail string, err error) Event {
	e := Event{Type: t, OccurredAt: time.Now().UTC(), PID: pid, Port: port, Detail: detail}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder sends events to an optional sink. Delivery failures are logged
// and never reach the caller.
type Recorder struct {
	Sink    Sink
	Timeout time.Duration
}

func (r *Recorder) Record(ctx context.Context, e Event) {
	if r == nil || r.Sink == nil {
		return
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := r.Sink.Send(ctx, e); err != nil {
		slog.Warn("Failed to record history event", "type", e.Type, "error", err)
	}
}
