package model

import (
	"errors"
	"time"
)

// Tweet is an authored post. Immutable once created; the feed pipeline only
// ever references it by id.
type Tweet struct {
	ID        int64     `db:"id" json:"id"`
	AuthorID  int64     `db:"author_id" json:"author_id"`
	Text      string    `db:"text" json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MaxTweetTextLength is the upper bound on tweet text, in runes.
const MaxTweetTextLength = 140

// Tweet errors
var (
	ErrTweetNotFound = errors.New("tweet not found")
	ErrEmptyText     = errors.New("tweet text is empty")
	ErrTextTooLong   = errors.New("tweet text too long")
)
