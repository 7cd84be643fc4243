package core

import (
	"context"
	"time"
)

// Event is a workflow event published to interested consumers
// (notifications, analytics).
type Event struct {
	Name  string                 `json:"name"`
	Actor string                 `json:"actor,omitempty"` // acting user's email
	At    time.Time              `json:"at"`              // UTC
	Data  map[string]interface{} `json:"data,omitempty"`
}

// EventPublisher is any service that can publish workflow events.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
