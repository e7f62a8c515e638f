package feedstore

import (
	"context"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v2"

	"microblog/internal/model"
)

// MemoryFeedStore keeps feeds in process memory. Feeds live in a concurrent
// map keyed by follower id; each feed carries its own RWMutex so append+trim
// is atomic per feed while feeds of different followers never contend.
type MemoryFeedStore struct {
	retention int
	feeds     *xsync.MapOf[int64, *memoryFeed]
}

type memoryFeed struct {
	mu sync.RWMutex
	// entries ordered by (CreatedAt, TweetID) ascending; newest last.
	entries []model.FeedEntry
}

func NewMemoryFeedStore(retention int) *MemoryFeedStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryFeedStore{
		retention: retention,
		feeds:     xsync.NewIntegerMapOf[int64, *memoryFeed](),
	}
}

func (s *MemoryFeedStore) feed(followerID int64) *memoryFeed {
	f, _ := s.feeds.LoadOrCompute(followerID, func() *memoryFeed {
		return &memoryFeed{}
	})
	return f
}

func (s *MemoryFeedStore) Add(ctx context.Context, followerID int64, entry model.FeedEntry) error {
	f := s.feed(followerID)

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.entries {
		if e.TweetID == entry.TweetID {
			return nil
		}
	}

	i := sort.Search(len(f.entries), func(i int) bool {
		e := f.entries[i]
		if e.CreatedAt != entry.CreatedAt {
			return e.CreatedAt > entry.CreatedAt
		}
		return e.TweetID > entry.TweetID
	})
	f.entries = append(f.entries, model.FeedEntry{})
	copy(f.entries[i+1:], f.entries[i:])
	f.entries[i] = entry

	if excess := len(f.entries) - s.retention; excess > 0 {
		f.entries = append(f.entries[:0:0], f.entries[excess:]...)
	}

	return nil
}

func (s *MemoryFeedStore) Remove(ctx context.Context, followerID, tweetID int64) error {
	f, ok := s.feeds.Load(followerID)
	if !ok {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, e := range f.entries {
		if e.TweetID == tweetID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryFeedStore) ReadNewest(ctx context.Context, followerID int64, count int) ([]model.FeedEntry, error) {
	if count <= 0 {
		return []model.FeedEntry{}, nil
	}

	f, ok := s.feeds.Load(followerID)
	if !ok {
		return []model.FeedEntry{}, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.entries)
	if count > n {
		count = n
	}

	out := make([]model.FeedEntry, count)
	for i := 0; i < count; i++ {
		out[i] = f.entries[n-1-i]
	}
	return out, nil
}

func (s *MemoryFeedStore) Contains(ctx context.Context, followerID, tweetID int64) (bool, error) {
	f, ok := s.feeds.Load(followerID)
	if !ok {
		return false, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, e := range f.entries {
		if e.TweetID == tweetID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryFeedStore) Size(ctx context.Context, followerID int64) (int64, error) {
	f, ok := s.feeds.Load(followerID)
	if !ok {
		return 0, nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.entries)), nil
}
