package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const (
	// channelCapacity bounds the in-flight event buffer.
	channelCapacity = 1024

	// maxRequeueDelay caps the exponential redelivery backoff.
	maxRequeueDelay = 30 * time.Second
)

// DeadLetter is an event that exhausted its delivery attempts.
type DeadLetter struct {
	Message Message
	Reason  string
}

// ChannelBroker is an in-process broker implementing both Publisher and
// Consumer on a buffered Go channel. It keeps the same delivery semantics as
// the Redis Streams broker: at-least-once, unacknowledged deliveries are
// redelivered, Nack requeues with exponential backoff, and exhausted
// messages land in an in-memory dead-letter list. Used by tests and
// single-binary deployments.
type ChannelBroker struct {
	baseBackoff time.Duration
	queue       chan delivery
	done        chan struct{}
	closeOnce   sync.Once

	mu      sync.Mutex
	nextID  int64
	pending map[string]delivery
	dead    []DeadLetter
}

type delivery struct {
	id       string
	event    Event
	attempts int64 // completed deliveries so far
}

func NewChannelBroker(baseBackoff time.Duration) *ChannelBroker {
	if baseBackoff <= 0 {
		baseBackoff = 50 * time.Millisecond
	}
	return &ChannelBroker{
		baseBackoff: baseBackoff,
		queue:       make(chan delivery, channelCapacity),
		done:        make(chan struct{}),
		pending:     make(map[string]delivery),
	}
}

func (b *ChannelBroker) Publish(ctx context.Context, stream string, event Event) (string, error) {
	select {
	case <-b.done:
		return "", fmt.Errorf("broker closed")
	default:
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("%d-%d", time.Now().UnixMilli(), b.nextID)
	b.mu.Unlock()

	select {
	case b.queue <- delivery{id: id, event: event}:
		return id, nil
	case <-b.done:
		return "", fmt.Errorf("broker closed")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *ChannelBroker) EnsureGroup(ctx context.Context, stream, group string) error {
	return nil
}

func (b *ChannelBroker) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	if count <= 0 {
		count = 1
	}

	var timeout <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		timeout = timer.C
	}

	var messages []Message

	// Block for the first message, then drain whatever else is ready.
	select {
	case d := <-b.queue:
		messages = append(messages, b.deliver(d))
	case <-timeout:
		return nil, nil
	case <-b.done:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for int64(len(messages)) < count {
		select {
		case d := <-b.queue:
			messages = append(messages, b.deliver(d))
		default:
			return messages, nil
		}
	}
	return messages, nil
}

func (b *ChannelBroker) deliver(d delivery) Message {
	d.attempts++

	b.mu.Lock()
	b.pending[d.id] = d
	b.mu.Unlock()

	return Message{ID: d.id, Event: d.event, Attempts: d.attempts}
}

func (b *ChannelBroker) Ack(ctx context.Context, stream, group string, messageIDs ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range messageIDs {
		delete(b.pending, id)
	}
	return nil
}

// Nack requeues the delivery after an exponential backoff derived from its
// attempt count.
func (b *ChannelBroker) Nack(ctx context.Context, stream, group string, messageID string) error {
	b.mu.Lock()
	d, ok := b.pending[messageID]
	if ok {
		delete(b.pending, messageID)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}

	delay := b.baseBackoff << (d.attempts - 1)
	if delay > maxRequeueDelay || delay <= 0 {
		delay = maxRequeueDelay
	}

	time.AfterFunc(delay, func() {
		select {
		case b.queue <- d:
		case <-b.done:
		}
	})

	log.Printf("[ChannelBroker] Nack: msgID=%s attempts=%d redelivery in %v", messageID, d.attempts, delay)
	return nil
}

func (b *ChannelBroker) DeadLetter(ctx context.Context, stream, group string, msg Message, reason string) error {
	b.mu.Lock()
	delete(b.pending, msg.ID)
	b.dead = append(b.dead, DeadLetter{Message: msg, Reason: reason})
	b.mu.Unlock()

	log.Printf("[ChannelBroker] DEAD-LETTERED: msgID=%s type=%s attempts=%d reason=%s",
		msg.ID, msg.Event.Type, msg.Attempts, reason)
	return nil
}

func (b *ChannelBroker) Pending(ctx context.Context, stream, group string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.pending)), nil
}

// DeadLetters returns a snapshot of the dead-letter list.
func (b *ChannelBroker) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DeadLetter, len(b.dead))
	copy(out, b.dead)
	return out
}

func (b *ChannelBroker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
