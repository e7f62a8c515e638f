package model

import (
	"errors"
	"time"
)

// FollowEdge is a single follower -> author subscription. Unique per pair.
type FollowEdge struct {
	FollowerID int64     `db:"follower_id" json:"follower_id"`
	AuthorID   int64     `db:"author_id" json:"author_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Follow errors
var (
	ErrSelfFollow = errors.New("cannot follow yourself")
)
