package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type followRepository struct {
	db *sqlx.DB
}

func NewFollowRepository(db *sqlx.DB) FollowRepository {
	return &followRepository{db: db}
}

func (r *followRepository) Create(ctx context.Context, followerID, authorID int64) (bool, error) {
	query := `
		INSERT INTO follows (follower_id, author_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, author_id) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, followerID, authorID)
	if err != nil {
		return false, fmt.Errorf("failed to create follow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, authorID int64) (bool, error) {
	query := `DELETE FROM follows WHERE follower_id = $1 AND author_id = $2`
	result, err := r.db.ExecContext(ctx, query, followerID, authorID)
	if err != nil {
		return false, fmt.Errorf("failed to delete follow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, authorID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND author_id = $2)`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query, followerID, authorID)
	if err != nil {
		return false, fmt.Errorf("failed to check follow existence: %w", err)
	}
	return exists, nil
}

func (r *followRepository) GetFollowerIDs(ctx context.Context, authorID int64) ([]int64, error) {
	query := `SELECT follower_id FROM follows WHERE author_id = $1`
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get follower ids: %w", err)
	}
	return ids, nil
}

func (r *followRepository) GetFolloweeIDs(ctx context.Context, followerID int64) ([]int64, error) {
	query := `SELECT author_id FROM follows WHERE follower_id = $1`
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, query, followerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get followee ids: %w", err)
	}
	return ids, nil
}
