package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sethvargo/go-retry"

	"microblog/internal/feedstore"
	"microblog/internal/model"
	"microblog/internal/queue"
)

// FollowerProvider answers point-in-time follower snapshots for fan-out.
// Abstracts the repository layer so the worker doesn't depend on a database.
type FollowerProvider interface {
	GetFollowerIDs(ctx context.Context, authorID int64) ([]int64, error)
}

// TweetProvider resolves tweet ids back to tweet records. The fan-out step
// re-validates existence through it before touching any feed.
type TweetProvider interface {
	GetByID(ctx context.Context, tweetID int64) (*model.Tweet, error)
}

// Handler is the feed materializer. It consumes feed events and maintains
// one bounded, time-ordered feed per follower by fan-out-on-write. All of
// its work is idempotent: processing the same event twice yields the same
// feeds as processing it once, which is what makes at-least-once delivery
// safe.
type Handler struct {
	feeds         feedstore.FeedStore
	followers     FollowerProvider
	tweets        TweetProvider
	fanoutTimeout time.Duration
}

func NewHandler(feeds feedstore.FeedStore, followers FollowerProvider, tweets TweetProvider, fanoutTimeout time.Duration) *Handler {
	if fanoutTimeout <= 0 {
		fanoutTimeout = 30 * time.Second
	}
	return &Handler{
		feeds:         feeds,
		followers:     followers,
		tweets:        tweets,
		fanoutTimeout: fanoutTimeout,
	}
}

// HandleEvent routes an event to the appropriate handler based on type.
// A returned error means the delivery failed and the dispatcher should
// redeliver (or dead-letter) it.
func (h *Handler) HandleEvent(ctx context.Context, event queue.Event) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventTweetPublished:
		err = h.handleTweetPublished(ctx, event)
	case queue.EventTweetDeleted:
		err = h.handleTweetDeleted(ctx, event)
	case queue.EventUserFollowed:
		err = h.handleUserFollowed(ctx, event)
	case queue.EventUserUnfollowed:
		err = h.handleUserUnfollowed(ctx, event)
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s duration=%v err=%v",
			event.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleEvent OK: type=%s duration=%v", event.Type, time.Since(startTime))
	return nil
}

// handleTweetPublished fans a tweet out to all current followers of its
// author. One attempt is bounded in wall time; a crash or timeout mid
// fan-out is recovered by redelivery plus idempotent appends, not by a
// resume cursor.
func (h *Handler) handleTweetPublished(ctx context.Context, event queue.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.fanoutTimeout)
	defer cancel()

	// Re-validate the tweet. Deletion races with fan-out are expected:
	// a tweet already gone is a completed no-op, not an error.
	tweet, err := h.tweets.GetByID(ctx, event.TweetID)
	if errors.Is(err, model.ErrTweetNotFound) {
		log.Printf("[Worker] TweetPublished: tweet=%d no longer exists, skipping", event.TweetID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get tweet: %w", err)
	}

	followers, err := h.followers.GetFollowerIDs(ctx, tweet.AuthorID)
	if err != nil {
		return fmt.Errorf("get followers: %w", err)
	}

	log.Printf("[Worker] TweetPublished: tweet=%d author=%d fanning out to %d followers",
		tweet.ID, tweet.AuthorID, len(followers))

	// Placement uses the tweet's own creation time, never arrival order,
	// so out-of-order and redelivered events land correctly.
	entry := model.FeedEntry{
		TweetID:   tweet.ID,
		AuthorID:  tweet.AuthorID,
		CreatedAt: tweet.CreatedAt.Unix(),
	}

	var failed int
	for _, followerID := range followers {
		if err := h.appendWithRetry(ctx, followerID, entry); err != nil {
			log.Printf("[Worker] TweetPublished: append failed: follower=%d tweet=%d err=%v",
				followerID, tweet.ID, err)
			failed++
		}
	}

	if failed > 0 {
		// Surface the failure so the dispatcher redelivers. Followers that
		// were already appended are skipped on the next attempt.
		return fmt.Errorf("fan-out incomplete: %d of %d appends failed", failed, len(followers))
	}

	log.Printf("[Worker] TweetPublished DONE: tweet=%d fanout=%d", tweet.ID, len(followers))
	return nil
}

// appendWithRetry absorbs transient store failures locally before the
// dispatcher-level redelivery kicks in.
func (h *Handler) appendWithRetry(ctx context.Context, followerID int64, entry model.FeedEntry) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := h.feeds.Add(ctx, followerID, entry); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// handleTweetDeleted scrubs a deleted tweet from its author's followers'
// feeds. Followers who already lost the entry to retention trimming are
// unaffected; Remove of an absent entry is a no-op.
func (h *Handler) handleTweetDeleted(ctx context.Context, event queue.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.fanoutTimeout)
	defer cancel()

	followers, err := h.followers.GetFollowerIDs(ctx, event.AuthorID)
	if err != nil {
		return fmt.Errorf("get followers: %w", err)
	}

	var failed int
	for _, followerID := range followers {
		if err := h.feeds.Remove(ctx, followerID, event.TweetID); err != nil {
			log.Printf("[Worker] TweetDeleted: remove failed: follower=%d tweet=%d err=%v",
				followerID, event.TweetID, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("scrub incomplete: %d of %d removes failed", failed, len(followers))
	}

	log.Printf("[Worker] TweetDeleted DONE: tweet=%d followers=%d", event.TweetID, len(followers))
	return nil
}

// handleUserFollowed applies no feed change: feed membership is decided at
// publish time, so a follow created after a tweet was published does not
// retroactively receive it.
func (h *Handler) handleUserFollowed(ctx context.Context, event queue.Event) error {
	log.Printf("[Worker] UserFollowed: follower=%d author=%d (no backfill)", event.FollowerID, event.AuthorID)
	return nil
}

// handleUserUnfollowed applies no feed change: entries already fanned out
// stay in the ex-follower's feed until retention trims them.
func (h *Handler) handleUserUnfollowed(ctx context.Context, event queue.Event) error {
	log.Printf("[Worker] UserUnfollowed: follower=%d author=%d (entries retained)", event.FollowerID, event.AuthorID)
	return nil
}
