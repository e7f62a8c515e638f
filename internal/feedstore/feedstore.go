// Package feedstore holds the per-follower materialized feeds: one bounded,
// time-ordered sequence of tweet references per follower, populated by the
// fan-out worker and read by the feed query path.
//
// Ordering contract: entries are kept ordered by (createdAt, tweetId)
// ascending; ReadNewest returns the retained suffix reversed, newest first.
// Every implementation must keep append+trim atomic per feed and must never
// hold a lock spanning more than one follower's feed.
package feedstore

import (
	"context"

	"microblog/internal/model"
)

// DefaultRetention is the default retention bound R: the maximum number of
// entries kept per feed. Older entries are discarded on append.
const DefaultRetention = 500

// FeedStore is the persistence contract for materialized feeds.
type FeedStore interface {
	// Add inserts a tweet reference into the follower's feed, creating the
	// feed lazily. Adding a tweet already present in the retained window is
	// a no-op; this is what makes at-least-once delivery safe. After the
	// insert the feed is trimmed to the retention bound, oldest first.
	Add(ctx context.Context, followerID int64, entry model.FeedEntry) error

	// Remove deletes the reference to a tweet from the follower's feed.
	// Removing an absent tweet is a no-op.
	Remove(ctx context.Context, followerID, tweetID int64) error

	// ReadNewest returns up to count entries, newest first. A follower who
	// was never fanned-out into reads as an empty feed. Never mutates.
	ReadNewest(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error)

	// Contains reports whether the tweet is in the follower's retained window.
	Contains(ctx context.Context, followerID, tweetID int64) (bool, error)

	// Size returns the number of retained entries in the follower's feed.
	Size(ctx context.Context, followerID int64) (int64, error)
}
