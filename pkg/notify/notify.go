// Package notify fans dashboard events out to the live subscribers: the
// websocket hub and, when configured, the Kafka alert topic.
package notify

import (
	"context"
	"time"
)

// Event types delivered to subscribers.
const (
	EventAlertCreated      = "alert.created"
	EventAlertResolved     = "alert.resolved"
	EventForecastCompleted = "forecast.completed"
)

// Event is one dashboard-facing notification.
type Event struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, At: time.Now().UTC(), Data: data}
}

// Sink consumes events. Implementations must return quickly and must not
// fail the caller; delivery is best-effort.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// Fanout delivers each event to every sink in order. A nil or empty Fanout
// is valid and drops everything.
type Fanout []Sink

var _ Sink = (Fanout)(nil)

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, sink := range f {
		sink.Publish(ctx, event)
	}
}
