package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"microblog/internal/model"
	"microblog/internal/queue"
	"microblog/internal/repository"
)

// TweetService owns tweet creation and deletion and ties both to dispatch:
// after a successful store the service always attempts to publish the
// matching event, so a tweet is never stored without a fan-out attempt.
// A failed publish is logged, not fatal; the write has already committed
// and fan-out can be repaired operationally.
type TweetService struct {
	tweetRepo repository.TweetRepository
	directory repository.UserDirectory
	publisher queue.Publisher
}

func NewTweetService(
	tweetRepo repository.TweetRepository,
	directory repository.UserDirectory,
	publisher queue.Publisher,
) *TweetService {
	return &TweetService{
		tweetRepo: tweetRepo,
		directory: directory,
		publisher: publisher,
	}
}

// Create validates and stores a new tweet, then dispatches the publish event.
func (s *TweetService) Create(ctx context.Context, authorID int64, text string) (*model.Tweet, error) {
	if strings.TrimSpace(text) == "" {
		return nil, model.ErrEmptyText
	}
	if utf8.RuneCountInString(text) > model.MaxTweetTextLength {
		return nil, model.ErrTextTooLong
	}

	exists, err := s.directory.Exists(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("check author exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("author %d: %w", authorID, model.ErrUserNotFound)
	}

	tweet, err := s.tweetRepo.Create(ctx, authorID, text)
	if err != nil {
		return nil, fmt.Errorf("create tweet: %w", err)
	}

	event := queue.NewTweetPublishedEvent(tweet.ID, tweet.AuthorID, tweet.CreatedAt.Unix())
	msgID, err := s.publisher.Publish(ctx, queue.StreamFeed, event)
	if err != nil {
		log.Printf("[TweetService] Failed to publish TweetPublished: tweet=%d err=%v", tweet.ID, err)
	} else {
		log.Printf("[TweetService] Published TweetPublished: tweet=%d msgID=%s", tweet.ID, msgID)
	}

	return tweet, nil
}

func (s *TweetService) GetByID(ctx context.Context, tweetID int64) (*model.Tweet, error) {
	return s.tweetRepo.GetByID(ctx, tweetID)
}

// Delete removes a tweet and dispatches the scrub event so the materializer
// drops it from followers' feeds.
func (s *TweetService) Delete(ctx context.Context, tweetID, authorID int64) error {
	if err := s.tweetRepo.Delete(ctx, tweetID, authorID); err != nil {
		return err
	}

	event := queue.NewTweetDeletedEvent(tweetID, authorID)
	if _, err := s.publisher.Publish(ctx, queue.StreamFeed, event); err != nil {
		log.Printf("[TweetService] Failed to publish TweetDeleted: tweet=%d err=%v", tweetID, err)
	}

	return nil
}
