package repository

import (
	"context"

	"microblog/internal/model"
)

// UserDirectory is the identity directory the feed core consumes. It only
// answers existence checks; accounts and credentials are owned elsewhere.
type UserDirectory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

type UserRepository interface {
	UserDirectory
	Create(ctx context.Context, login string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// FollowRepository owns the set of follow edges.
type FollowRepository interface {
	// Create inserts the edge if absent. Reports whether a new edge was
	// created; inserting an existing edge is a no-op.
	Create(ctx context.Context, followerID, authorID int64) (bool, error)
	// Delete removes the edge if present. Reports whether an edge was removed.
	Delete(ctx context.Context, followerID, authorID int64) (bool, error)
	Exists(ctx context.Context, followerID, authorID int64) (bool, error)
	// GetFollowerIDs returns a point-in-time snapshot of everyone following
	// the author. The fan-out step iterates this snapshot, so it must reflect
	// all committed follow/unfollow calls at the time of the call.
	GetFollowerIDs(ctx context.Context, authorID int64) ([]int64, error)
	GetFolloweeIDs(ctx context.Context, followerID int64) ([]int64, error)
}

// TweetRepository is the append-only store of authored posts.
type TweetRepository interface {
	Create(ctx context.Context, authorID int64, text string) (*model.Tweet, error)
	GetByID(ctx context.Context, tweetID int64) (*model.Tweet, error)
	Delete(ctx context.Context, tweetID, authorID int64) error
	// GetRecentByAuthors returns feed references to the newest tweets across
	// the given authors, newest first. Used by the on-demand read strategy.
	GetRecentByAuthors(ctx context.Context, authorIDs []int64, limit int) ([]model.FeedEntry, error)
}
