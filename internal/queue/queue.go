// Package queue is the publish dispatcher: it decouples tweet creation from
// feed fan-out behind an explicit channel abstraction with documented
// delivery guarantees, so the core never assumes a particular broker.
//
// Guarantees: at-least-once delivery; no ordering across authors; per-author
// order best-effort only. A delivery that keeps failing is retried with
// backoff and, after a bounded number of attempts, moved to a dead-letter
// channel where an operator can inspect it. Nothing is silently dropped.
package queue

import (
	"context"
	"time"
)

// Message is a single delivery of an event to a consumer.
type Message struct {
	ID       string // broker-assigned message id
	Event    Event
	Attempts int64 // how many times this message has been delivered, >= 1
}

// Publisher hands events to the asynchronous channel.
type Publisher interface {
	// Publish adds an event to the stream and returns its message id.
	Publish(ctx context.Context, stream string, event Event) (string, error)
}

// Consumer drains events for a worker group.
type Consumer interface {
	// EnsureGroup creates the consumer group if it doesn't exist.
	// Call once at worker startup.
	EnsureGroup(ctx context.Context, stream, group string) error

	// Read returns up to count messages for this consumer, blocking up to
	// block for new ones. Deliveries that a crashed or stuck consumer never
	// acknowledged are redelivered here with their attempt count.
	Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error)

	// Ack marks messages as fully processed.
	Ack(ctx context.Context, stream, group string, messageIDs ...string) error

	// Nack signals a failed delivery so the message is redelivered later,
	// after a backoff.
	Nack(ctx context.Context, stream, group string, messageID string) error

	// DeadLetter moves a message that exhausted its delivery attempts to the
	// dead-letter channel and acknowledges the original. Dead-lettered
	// events are operator-visible and never re-attempted automatically.
	DeadLetter(ctx context.Context, stream, group string, msg Message, reason string) error

	// Pending returns the number of delivered-but-unacknowledged messages.
	Pending(ctx context.Context, stream, group string) (int64, error)
}
