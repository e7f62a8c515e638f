package feedstore

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"microblog/internal/model"
)

const (
	// feedKeyPrefix is the key prefix for per-follower feeds.
	feedKeyPrefix = "feed:user:"

	// feedTTL expires feeds that receive neither appends nor reads.
	feedTTL = 7 * 24 * time.Hour
)

// RedisFeedStore implements FeedStore on a Redis sorted set per follower.
// The member encodes "tweetID:authorID" and the score is the tweet's own
// creation time, so placement never depends on delivery order and re-adding
// the same tweet is naturally idempotent (ZADD of an existing member).
type RedisFeedStore struct {
	client    *redis.Client
	retention int
}

func NewRedisFeedStore(client *redis.Client, retention int) *RedisFeedStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisFeedStore{client: client, retention: retention}
}

func feedKey(followerID int64) string {
	return fmt.Sprintf("%s%d", feedKeyPrefix, followerID)
}

func member(tweetID, authorID int64) string {
	return fmt.Sprintf("%d:%d", tweetID, authorID)
}

func parseMember(m string) (tweetID, authorID int64, err error) {
	parts := strings.SplitN(m, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed feed member %q", m)
	}
	tweetID, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse tweet id: %w", err)
	}
	authorID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("parse author id: %w", err)
	}
	return tweetID, authorID, nil
}

// Add appends via a pipeline: ZADD + ZREMRANGEBYRANK (trim to retention,
// oldest first) + EXPIRE (refresh TTL). The pipeline keeps append+trim
// atomic per feed without any cross-feed coordination.
func (s *RedisFeedStore) Add(ctx context.Context, followerID int64, entry model.FeedEntry) error {
	key := feedKey(followerID)
	startTime := time.Now()

	pipe := s.client.TxPipeline()

	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(entry.CreatedAt),
		Member: member(entry.TweetID, entry.AuthorID),
	})

	// Keep the highest `retention` scores (newest), remove the rest.
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.retention-1))

	pipe.Expire(ctx, key, feedTTL)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Printf("[FeedStore] Add FAILED: follower=%d tweet=%d err=%v", followerID, entry.TweetID, err)
		return fmt.Errorf("add entry to feed: %w", err)
	}

	log.Printf("[FeedStore] Add OK: follower=%d tweet=%d createdAt=%d duration=%v",
		followerID, entry.TweetID, entry.CreatedAt, time.Since(startTime))
	return nil
}

func (s *RedisFeedStore) Remove(ctx context.Context, followerID, tweetID int64) error {
	key := feedKey(followerID)

	members, err := s.scanTweet(ctx, key, tweetID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}

	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}

	removed, err := s.client.ZRem(ctx, key, args...).Result()
	if err != nil {
		log.Printf("[FeedStore] Remove FAILED: follower=%d tweet=%d err=%v", followerID, tweetID, err)
		return fmt.Errorf("remove entry from feed: %w", err)
	}

	log.Printf("[FeedStore] Remove OK: follower=%d tweet=%d removed=%d", followerID, tweetID, removed)
	return nil
}

func (s *RedisFeedStore) ReadNewest(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error) {
	if count <= 0 {
		return []model.FeedEntry{}, nil
	}

	key := feedKey(followerID)
	startTime := time.Now()

	results, err := s.client.ZRevRangeWithScores(ctx, key, 0, int64(count-1)).Result()
	if err != nil {
		log.Printf("[FeedStore] ReadNewest FAILED: follower=%d err=%v", followerID, err)
		return nil, fmt.Errorf("read feed: %w", err)
	}

	// Refresh TTL on access.
	s.client.Expire(ctx, key, feedTTL)

	entries := make([]model.FeedEntry, 0, len(results))
	for _, z := range results {
		tweetID, authorID, err := parseMember(z.Member.(string))
		if err != nil {
			return nil, err
		}
		entries = append(entries, model.FeedEntry{
			TweetID:   tweetID,
			AuthorID:  authorID,
			CreatedAt: int64(z.Score),
		})
	}

	log.Printf("[FeedStore] ReadNewest OK: follower=%d returned=%d duration=%v",
		followerID, len(entries), time.Since(startTime))
	return entries, nil
}

func (s *RedisFeedStore) Contains(ctx context.Context, followerID, tweetID int64) (bool, error) {
	members, err := s.scanTweet(ctx, feedKey(followerID), tweetID)
	if err != nil {
		return false, err
	}
	return len(members) > 0, nil
}

func (s *RedisFeedStore) Size(ctx context.Context, followerID int64) (int64, error) {
	size, err := s.client.ZCard(ctx, feedKey(followerID)).Result()
	if err != nil {
		return 0, fmt.Errorf("get feed size: %w", err)
	}
	return size, nil
}

// scanTweet finds the members referencing a tweet via ZSCAN with a
// "tweetID:*" match, since the member also carries the author id.
func (s *RedisFeedStore) scanTweet(ctx context.Context, key string, tweetID int64) ([]string, error) {
	match := fmt.Sprintf("%d:*", tweetID)

	var members []string
	var cursor uint64
	for {
		keys, next, err := s.client.ZScan(ctx, key, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		// ZSCAN returns member,score pairs; keep the members.
		for i := 0; i < len(keys); i += 2 {
			members = append(members, keys[i])
		}
		if next == 0 {
			return members, nil
		}
		cursor = next
	}
}
