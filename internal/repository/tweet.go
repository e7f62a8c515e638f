package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"microblog/internal/model"
)

type tweetRepository struct {
	db *sqlx.DB
}

func NewTweetRepository(db *sqlx.DB) TweetRepository {
	return &tweetRepository{db: db}
}

func (r *tweetRepository) Create(ctx context.Context, authorID int64, text string) (*model.Tweet, error) {
	query := `
		INSERT INTO tweets (author_id, text)
		VALUES ($1, $2)
		RETURNING id, author_id, text, created_at
	`
	var tweet model.Tweet
	err := r.db.GetContext(ctx, &tweet, query, authorID, text)
	if err != nil {
		return nil, fmt.Errorf("insert tweet: %w", err)
	}
	return &tweet, nil
}

func (r *tweetRepository) GetByID(ctx context.Context, tweetID int64) (*model.Tweet, error) {
	query := `
		SELECT id, author_id, text, created_at
		FROM tweets
		WHERE id = $1
	`
	var tweet model.Tweet
	err := r.db.GetContext(ctx, &tweet, query, tweetID)
	if err == sql.ErrNoRows {
		return nil, model.ErrTweetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tweet: %w", err)
	}
	return &tweet, nil
}

func (r *tweetRepository) Delete(ctx context.Context, tweetID, authorID int64) error {
	query := `DELETE FROM tweets WHERE id = $1 AND author_id = $2`
	result, err := r.db.ExecContext(ctx, query, tweetID, authorID)
	if err != nil {
		return fmt.Errorf("delete tweet: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrTweetNotFound
	}

	return nil
}

func (r *tweetRepository) GetRecentByAuthors(ctx context.Context, authorIDs []int64, limit int) ([]model.FeedEntry, error) {
	if len(authorIDs) == 0 {
		return []model.FeedEntry{}, nil
	}

	query := `
		SELECT id, author_id, EXTRACT(EPOCH FROM created_at)::bigint AS timestamp
		FROM tweets
		WHERE author_id = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	type row struct {
		ID        int64 `db:"id"`
		AuthorID  int64 `db:"author_id"`
		Timestamp int64 `db:"timestamp"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, query, pq.Array(authorIDs), limit)
	if err != nil {
		return nil, fmt.Errorf("get recent tweets: %w", err)
	}

	entries := make([]model.FeedEntry, len(rows))
	for i, r := range rows {
		entries[i] = model.FeedEntry{TweetID: r.ID, AuthorID: r.AuthorID, CreatedAt: r.Timestamp}
	}
	return entries, nil
}
