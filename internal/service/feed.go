package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"microblog/internal/feedstore"
	"microblog/internal/model"
	"microblog/internal/repository"
)

// ReadStrategy answers feed reads: the most recent entries for a follower,
// newest first. Two implementations exist behind the same contract and a
// deployment picks exactly one; they are never mixed.
type ReadStrategy interface {
	ReadNewest(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error)
}

// FeedReader serves the feed read query.
type FeedReader struct {
	strategy ReadStrategy
}

func NewFeedReader(strategy ReadStrategy) *FeedReader {
	return &FeedReader{strategy: strategy}
}

// GetFeed returns the most recent min(count, feedLength) entries for the
// follower, newest first. A follower nobody ever fanned out into gets an
// empty slice, not a not-found error. Never mutates the feed.
func (r *FeedReader) GetFeed(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error) {
	if count < 0 {
		return nil, model.ErrNegativeCount
	}
	if count == 0 {
		return []model.FeedEntry{}, nil
	}

	startTime := time.Now()
	entries, err := r.strategy.ReadNewest(ctx, followerID, count)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	if entries == nil {
		entries = []model.FeedEntry{}
	}

	log.Printf("[FeedReader] GetFeed OK: follower=%d count=%d returned=%d duration=%v",
		followerID, count, len(entries), time.Since(startTime))
	return entries, nil
}

// NewReadStrategy selects a feed read strategy by its configured name.
func NewReadStrategy(
	name string,
	feeds feedstore.FeedStore,
	followRepo repository.FollowRepository,
	tweetRepo repository.TweetRepository,
) (ReadStrategy, error) {
	switch name {
	case "", "materialized":
		return NewMaterializedStrategy(feeds), nil
	case "ondemand":
		return NewOnDemandStrategy(followRepo, tweetRepo), nil
	default:
		return nil, fmt.Errorf("unknown feed strategy %q", name)
	}
}

// MaterializedStrategy reads the precomputed per-follower feeds kept by the
// fan-out worker. This is the primary strategy: reads cost O(count)
// regardless of how many authors the follower subscribes to.
type MaterializedStrategy struct {
	feeds feedstore.FeedStore
}

func NewMaterializedStrategy(feeds feedstore.FeedStore) *MaterializedStrategy {
	return &MaterializedStrategy{feeds: feeds}
}

func (s *MaterializedStrategy) ReadNewest(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error) {
	return s.feeds.ReadNewest(ctx, followerID, count)
}

// OnDemandStrategy joins over followed authors' recent tweets at read time.
// No fan-out amplification on writes, but reads scale with the number of
// followed authors; worth it only for low-follower-count workloads. Note
// the visibility difference from the materialized strategy: a fresh follow
// immediately exposes the author's back catalog here.
type OnDemandStrategy struct {
	followRepo repository.FollowRepository
	tweetRepo  repository.TweetRepository
}

func NewOnDemandStrategy(followRepo repository.FollowRepository, tweetRepo repository.TweetRepository) *OnDemandStrategy {
	return &OnDemandStrategy{followRepo: followRepo, tweetRepo: tweetRepo}
}

func (s *OnDemandStrategy) ReadNewest(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error) {
	authorIDs, err := s.followRepo.GetFolloweeIDs(ctx, followerID)
	if err != nil {
		return nil, fmt.Errorf("get followee ids: %w", err)
	}
	if len(authorIDs) == 0 {
		return []model.FeedEntry{}, nil
	}

	return s.tweetRepo.GetRecentByAuthors(ctx, authorIDs, count)
}
