package service

import (
	"context"
	"fmt"
	"log"

	"microblog/internal/model"
	"microblog/internal/queue"
	"microblog/internal/repository"
)

// SocialGraphService owns follow edges. Both follow and unfollow are
// idempotent: repeating a call is a no-op, not an error.
type SocialGraphService struct {
	followRepo repository.FollowRepository
	directory  repository.UserDirectory
	publisher  queue.Publisher
}

func NewSocialGraphService(
	followRepo repository.FollowRepository,
	directory repository.UserDirectory,
	publisher queue.Publisher,
) *SocialGraphService {
	return &SocialGraphService{
		followRepo: followRepo,
		directory:  directory,
		publisher:  publisher,
	}
}

// Follow creates the follower -> author edge if absent.
func (s *SocialGraphService) Follow(ctx context.Context, followerID, authorID int64) error {
	if followerID == authorID {
		return model.ErrSelfFollow
	}

	for _, id := range []int64{followerID, authorID} {
		exists, err := s.directory.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("user %d: %w", id, model.ErrUserNotFound)
		}
	}

	created, err := s.followRepo.Create(ctx, followerID, authorID)
	if err != nil {
		return err
	}
	if !created {
		// Already following.
		return nil
	}

	// Publish after the edge change commits. The event carries no feed
	// mutation; the materializer logs it and leaves feeds untouched.
	if s.publisher != nil {
		event := queue.NewUserFollowedEvent(followerID, authorID)
		if _, err := s.publisher.Publish(ctx, queue.StreamFeed, event); err != nil {
			log.Printf("[GraphService] Failed to publish UserFollowed: follower=%d author=%d err=%v",
				followerID, authorID, err)
		}
	}

	return nil
}

// Unfollow removes the edge if present. Entries already fanned out to the
// follower's feed stay there.
func (s *SocialGraphService) Unfollow(ctx context.Context, followerID, authorID int64) error {
	removed, err := s.followRepo.Delete(ctx, followerID, authorID)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	if s.publisher != nil {
		event := queue.NewUserUnfollowedEvent(followerID, authorID)
		if _, err := s.publisher.Publish(ctx, queue.StreamFeed, event); err != nil {
			log.Printf("[GraphService] Failed to publish UserUnfollowed: follower=%d author=%d err=%v",
				followerID, authorID, err)
		}
	}

	return nil
}

// FollowersOf returns a point-in-time snapshot of the author's followers.
func (s *SocialGraphService) FollowersOf(ctx context.Context, authorID int64) ([]int64, error) {
	return s.followRepo.GetFollowerIDs(ctx, authorID)
}

func (s *SocialGraphService) IsFollowing(ctx context.Context, followerID, authorID int64) (bool, error) {
	return s.followRepo.Exists(ctx, followerID, authorID)
}
