// Package notification fans domain events out to delivery sinks.
// Delivery is best-effort and asynchronous: a failed or slow sink never
// blocks the workflow that raised the event.
package notification

import (
	"context"
	"time"
)

// Message is what sinks deliver. Channel routes the message: personal
// channels are user IDs, AdminChannel reaches the back-office feed.
type Message struct {
	Channel   string         `json:"channel"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Kind      string         `json:"kind"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sink delivers a single message. Implementations own their retries.
type Sink interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Notifier is what services enqueue through.
type Notifier interface {
	Notify(msg *Message) error
}
