package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/puzpuzpuz/xsync/v2"

	"microblog/internal/model"
)

// In-memory implementations of the store contracts. They back tests and
// single-binary deployments where Postgres is not wired in; the contracts
// (idempotent edge insert, snapshot follower reads, monotonic tweet ids)
// match the SQL implementations.

type memoryUserRepository struct {
	mu     sync.Mutex
	nextID int64
	users  *xsync.MapOf[int64, *model.User]
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: xsync.NewIntegerMapOf[int64, *model.User]()}
}

func (r *memoryUserRepository) Create(ctx context.Context, login string) (*model.User, error) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	user := &model.User{ID: id, Login: login, CreatedAt: time.Now()}
	r.users.Store(id, user)
	return user, nil
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, ok := r.users.Load(id)
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return user, nil
}

func (r *memoryUserRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	_, ok := r.users.Load(userID)
	return ok, nil
}

type memoryFollowRepository struct {
	mu        sync.RWMutex
	followers map[int64]map[int64]time.Time // author -> follower -> since
	following map[int64]map[int64]time.Time // follower -> author -> since
}

func NewMemoryFollowRepository() FollowRepository {
	return &memoryFollowRepository{
		followers: make(map[int64]map[int64]time.Time),
		following: make(map[int64]map[int64]time.Time),
	}
}

func (r *memoryFollowRepository) Create(ctx context.Context, followerID, authorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.followers[authorID][followerID]; ok {
		return false, nil
	}

	now := time.Now()
	if r.followers[authorID] == nil {
		r.followers[authorID] = make(map[int64]time.Time)
	}
	if r.following[followerID] == nil {
		r.following[followerID] = make(map[int64]time.Time)
	}
	r.followers[authorID][followerID] = now
	r.following[followerID][authorID] = now
	return true, nil
}

func (r *memoryFollowRepository) Delete(ctx context.Context, followerID, authorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.followers[authorID][followerID]; !ok {
		return false, nil
	}
	delete(r.followers[authorID], followerID)
	delete(r.following[followerID], authorID)
	return true, nil
}

func (r *memoryFollowRepository) Exists(ctx context.Context, followerID, authorID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.followers[authorID][followerID]
	return ok, nil
}

func (r *memoryFollowRepository) GetFollowerIDs(ctx context.Context, authorID int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.followers[authorID]))
	for id := range r.followers[authorID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memoryFollowRepository) GetFolloweeIDs(ctx context.Context, followerID int64) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.following[followerID]))
	for id := range r.following[followerID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memoryTweetRepository struct {
	node   *snowflake.Node
	tweets *xsync.MapOf[int64, *model.Tweet]

	mu       sync.RWMutex
	byAuthor map[int64][]int64 // author -> tweet ids, append order
}

func NewMemoryTweetRepository() (TweetRepository, error) {
	// Snowflake ids are unique and monotonically increasing per node, which
	// matches the id contract of the SQL store's BIGSERIAL column.
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}

	return &memoryTweetRepository{
		node:     node,
		tweets:   xsync.NewIntegerMapOf[int64, *model.Tweet](),
		byAuthor: make(map[int64][]int64),
	}, nil
}

func (r *memoryTweetRepository) Create(ctx context.Context, authorID int64, text string) (*model.Tweet, error) {
	tweet := &model.Tweet{
		ID:        r.node.Generate().Int64(),
		AuthorID:  authorID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	r.tweets.Store(tweet.ID, tweet)

	r.mu.Lock()
	r.byAuthor[authorID] = append(r.byAuthor[authorID], tweet.ID)
	r.mu.Unlock()

	return tweet, nil
}

func (r *memoryTweetRepository) GetByID(ctx context.Context, tweetID int64) (*model.Tweet, error) {
	tweet, ok := r.tweets.Load(tweetID)
	if !ok {
		return nil, model.ErrTweetNotFound
	}
	return tweet, nil
}

func (r *memoryTweetRepository) Delete(ctx context.Context, tweetID, authorID int64) error {
	tweet, ok := r.tweets.Load(tweetID)
	if !ok || tweet.AuthorID != authorID {
		return model.ErrTweetNotFound
	}
	r.tweets.Delete(tweetID)

	r.mu.Lock()
	ids := r.byAuthor[authorID]
	for i, id := range ids {
		if id == tweetID {
			r.byAuthor[authorID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	return nil
}

func (r *memoryTweetRepository) GetRecentByAuthors(ctx context.Context, authorIDs []int64, limit int) ([]model.FeedEntry, error) {
	r.mu.RLock()
	var entries []model.FeedEntry
	for _, authorID := range authorIDs {
		for _, tweetID := range r.byAuthor[authorID] {
			if tweet, ok := r.tweets.Load(tweetID); ok {
				entries = append(entries, model.FeedEntry{
					TweetID:   tweet.ID,
					AuthorID:  tweet.AuthorID,
					CreatedAt: tweet.CreatedAt.Unix(),
				})
			}
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt != entries[j].CreatedAt {
			return entries[i].CreatedAt > entries[j].CreatedAt
		}
		return entries[i].TweetID > entries[j].TweetID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []model.FeedEntry{}
	}
	return entries, nil
}
