package model

import "errors"

// FeedEntry is a reference to a tweet inside one follower's feed. It carries
// just enough to order and hydrate: the tweet id, its author and the tweet's
// own creation time (unix seconds). Entries are placed by CreatedAt, never by
// delivery order, so redelivered and out-of-order events land correctly.
type FeedEntry struct {
	TweetID   int64 `json:"tweet_id"`
	AuthorID  int64 `json:"author_id"`
	CreatedAt int64 `json:"created_at"`
}

// Feed read errors
var (
	ErrNegativeCount = errors.New("count must be non-negative")
)
