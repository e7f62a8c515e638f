package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher implements Publisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish adds an event to the stream using XADD with an auto-generated id.
func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) (string, error) {
	startTime := time.Now()

	values, err := event.ToMap()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("serialize event: %w", err)
	}

	messageID, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
	if err != nil {
		log.Printf("[Publisher] Publish FAILED: stream=%s type=%s err=%v", stream, event.Type, err)
		return "", fmt.Errorf("xadd to stream: %w", err)
	}

	log.Printf("[Publisher] Publish OK: stream=%s type=%s msgID=%s duration=%v",
		stream, event.Type, messageID, time.Since(startTime))
	return messageID, nil
}

// RedisConsumer implements Consumer using Redis Streams consumer groups.
// Redelivery uses XAUTOCLAIM: a delivery that stays pending longer than
// minIdle (consumer crashed, handler stuck, Nack'd) is claimed on a later
// Read with its XPENDING delivery count as Attempts.
type RedisConsumer struct {
	client  *redis.Client
	minIdle time.Duration
}

func NewRedisConsumer(client *redis.Client, minIdle time.Duration) *RedisConsumer {
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	return &RedisConsumer{client: client, minIdle: minIdle}
}

// EnsureGroup creates the consumer group with MKSTREAM so the stream is
// created too. "0" makes the group see messages published before it existed.
func (c *RedisConsumer) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil {
		// BUSYGROUP means the group already exists.
		if err.Error() == "BUSYGROUP Consumer Group name already exists" {
			return nil
		}
		log.Printf("[Consumer] EnsureGroup FAILED: stream=%s group=%s err=%v", stream, group, err)
		return fmt.Errorf("create consumer group: %w", err)
	}

	log.Printf("[Consumer] EnsureGroup OK: stream=%s group=%s (created)", stream, group)
	return nil
}

// Read first claims stale pending deliveries from the whole group, then
// blocks for new messages.
func (c *RedisConsumer) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Message, error) {
	claimed, err := c.claimStale(ctx, stream, group, consumer, count)
	if err != nil {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		// Timeout, no new messages.
		return nil, nil
	}
	if err != nil {
		log.Printf("[Consumer] Read FAILED: stream=%s group=%s consumer=%s err=%v", stream, group, consumer, err)
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var messages []Message
	for _, s := range streams {
		for _, msg := range s.Messages {
			event, err := ParseEvent(msg.Values)
			if err != nil {
				log.Printf("[Consumer] Read parse error: msgID=%s err=%v", msg.ID, err)
				continue // skip malformed messages
			}
			messages = append(messages, Message{ID: msg.ID, Event: event, Attempts: 1})
		}
	}
	return messages, nil
}

// claimStale takes over pending deliveries idle for longer than minIdle and
// annotates them with their delivery counts.
func (c *RedisConsumer) claimStale(ctx context.Context, stream, group, consumer string, count int64) ([]Message, error) {
	claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  c.minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	attempts := make(map[string]int64, len(claimed))
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   stream,
		Group:    group,
		Start:    claimed[0].ID,
		End:      claimed[len(claimed)-1].ID,
		Count:    int64(len(claimed)),
		Consumer: consumer,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xpending: %w", err)
	}
	for _, p := range pending {
		attempts[p.ID] = p.RetryCount
	}

	var messages []Message
	for _, msg := range claimed {
		event, err := ParseEvent(msg.Values)
		if err != nil {
			log.Printf("[Consumer] claim parse error: msgID=%s err=%v", msg.ID, err)
			continue
		}
		n := attempts[msg.ID]
		if n < 1 {
			n = 1
		}
		messages = append(messages, Message{ID: msg.ID, Event: event, Attempts: n})
	}

	log.Printf("[Consumer] claimed %d stale messages: stream=%s group=%s consumer=%s",
		len(messages), stream, group, consumer)
	return messages, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, stream, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if err := c.client.XAck(ctx, stream, group, messageIDs...).Err(); err != nil {
		log.Printf("[Consumer] Ack FAILED: stream=%s group=%s ids=%v err=%v", stream, group, messageIDs, err)
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// Nack leaves the message pending; it is redelivered by a later claimStale
// once it has been idle for minIdle. The idle window is the backoff.
func (c *RedisConsumer) Nack(ctx context.Context, stream, group string, messageID string) error {
	log.Printf("[Consumer] Nack: stream=%s group=%s msgID=%s (redelivery in %v)",
		stream, group, messageID, c.minIdle)
	return nil
}

// DeadLetter copies the message to "<stream>:dead" and acknowledges the
// original, so the group's pending list stays clean while the event remains
// inspectable.
func (c *RedisConsumer) DeadLetter(ctx context.Context, stream, group string, msg Message, reason string) error {
	values, err := msg.Event.ToMap()
	if err != nil {
		return fmt.Errorf("serialize dead letter: %w", err)
	}
	values["original_id"] = msg.ID
	values["attempts"] = msg.Attempts
	values["reason"] = reason

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream(stream),
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dead letter: %w", err)
	}

	log.Printf("[Consumer] DEAD-LETTERED: stream=%s msgID=%s type=%s attempts=%d reason=%s",
		stream, msg.ID, msg.Event.Type, msg.Attempts, reason)

	return c.Ack(ctx, stream, group, msg.ID)
}

func (c *RedisConsumer) Pending(ctx context.Context, stream, group string) (int64, error) {
	info, err := c.client.XPending(ctx, stream, group).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	return info.Count, nil
}

// DeadLetterStream returns the dead-letter stream name for a stream.
func DeadLetterStream(stream string) string {
	return stream + ":dead"
}
