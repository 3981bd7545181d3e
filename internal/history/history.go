package history

import (
	"context"
	"time"
)

// Event is one action-log entry exported to an external system.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Service    string    `json:"service"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	PID        int       `json:"pid"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout forwards an event to every sink and returns the first error.
// All sinks are attempted regardless of earlier failures.
func Fanout(ctx context.Context, sinks []Sink, e Event) error {
	var first error
	for _, s := range sinks {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
