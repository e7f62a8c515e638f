package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the feed stream
const (
	EventTweetPublished = "tweet_published"
	EventTweetDeleted   = "tweet_deleted"
	EventUserFollowed   = "user_followed"
	EventUserUnfollowed = "user_unfollowed"
)

// Stream and group names
const (
	StreamFeed        = "stream:feed"
	ConsumerGroupFeed = "feed_workers"
)

// Event is a message on the feed stream. Delivery is at-least-once and
// per-author order is not guaranteed under redelivery, so events carry the
// tweet's own creation time and consumers must be idempotent.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix time the event was emitted

	// Tweet events
	TweetID   int64 `json:"tweet_id,omitempty"`
	AuthorID  int64 `json:"author_id,omitempty"`
	CreatedAt int64 `json:"created_at,omitempty"` // the tweet's creation time

	// Follow events
	FollowerID int64 `json:"follower_id,omitempty"`
}

// NewTweetPublishedEvent creates the event emitted after a tweet is stored.
// The worker fans the tweet out to all current followers of the author.
func NewTweetPublishedEvent(tweetID, authorID, createdAt int64) Event {
	return Event{
		Type:      EventTweetPublished,
		Timestamp: time.Now().Unix(),
		TweetID:   tweetID,
		AuthorID:  authorID,
		CreatedAt: createdAt,
	}
}

// NewTweetDeletedEvent creates the event emitted after a tweet is deleted.
// The worker scrubs the tweet from followers' feeds.
func NewTweetDeletedEvent(tweetID, authorID int64) Event {
	return Event{
		Type:      EventTweetDeleted,
		Timestamp: time.Now().Unix(),
		TweetID:   tweetID,
		AuthorID:  authorID,
	}
}

// NewUserFollowedEvent creates the event emitted after a follow edge commits.
// Feed membership is decided at publish time, so the worker applies no
// retroactive feed change; the event exists for observability and for
// consumers beyond the feed pipeline.
func NewUserFollowedEvent(followerID, authorID int64) Event {
	return Event{
		Type:       EventUserFollowed,
		Timestamp:  time.Now().Unix(),
		FollowerID: followerID,
		AuthorID:   authorID,
	}
}

// NewUserUnfollowedEvent creates the event emitted after an unfollow commits.
// Already-fanned-out entries stay in the ex-follower's feed.
func NewUserUnfollowedEvent(followerID, authorID int64) Event {
	return Event{
		Type:       EventUserUnfollowed,
		Timestamp:  time.Now().Unix(),
		FollowerID: followerID,
		AuthorID:   authorID,
	}
}

// ToMap converts the event to a map for Redis XADD. Streams store field-value
// pairs, so the event is serialized to JSON in a "data" field.
func (e Event) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseEvent parses an Event from Redis stream message values.
func ParseEvent(values map[string]interface{}) (Event, error) {
	data, ok := values["data"].(string)
	if !ok {
		return Event{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event Event
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
