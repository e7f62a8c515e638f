package model

import (
	"errors"
	"time"
)

// User is the slice of the identity directory the feed core can see:
// an opaque id and a unique login handle. Accounts, credentials and profile
// data live elsewhere.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Login     string    `db:"login" json:"login"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User errors
var (
	ErrUserNotFound = errors.New("user not found")
)
