package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"microblog/internal/feedstore"
	"microblog/internal/model"
	"microblog/internal/queue"
	"microblog/internal/repository"
)

type mockFollowerProvider struct {
	getFollowerIDsFn func(ctx context.Context, authorID int64) ([]int64, error)
}

func (m *mockFollowerProvider) GetFollowerIDs(ctx context.Context, authorID int64) ([]int64, error) {
	return m.getFollowerIDsFn(ctx, authorID)
}

type mockTweetProvider struct {
	getByIDFn func(ctx context.Context, tweetID int64) (*model.Tweet, error)
}

func (m *mockTweetProvider) GetByID(ctx context.Context, tweetID int64) (*model.Tweet, error) {
	return m.getByIDFn(ctx, tweetID)
}

// failingFeedStore wraps a real store and fails the first failAdds appends.
type failingFeedStore struct {
	feedstore.FeedStore

	mu       sync.Mutex
	failAdds int
}

func (s *failingFeedStore) Add(ctx context.Context, followerID int64, entry model.FeedEntry) error {
	s.mu.Lock()
	fail := s.failAdds > 0
	if fail {
		s.failAdds--
	}
	s.mu.Unlock()

	if fail {
		return errors.New("store unavailable")
	}
	return s.FeedStore.Add(ctx, followerID, entry)
}

func fixedTweet(id, authorID int64, createdAt time.Time) *model.Tweet {
	return &model.Tweet{ID: id, AuthorID: authorID, Text: "hello", CreatedAt: createdAt}
}

func TestHandlerFansOutToFollowers(t *testing.T) {
	ctx := context.Background()
	feeds := feedstore.NewMemoryFeedStore(10)
	createdAt := time.Unix(1700000000, 0)

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			if authorID != 1 {
				t.Errorf("unexpected author id: %d", authorID)
			}
			return []int64{2, 3}, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return fixedTweet(100, 1, createdAt), nil
		},
	}

	h := NewHandler(feeds, followers, tweets, time.Second)
	event := queue.NewTweetPublishedEvent(100, 1, createdAt.Unix())

	if err := h.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	want := []model.FeedEntry{{TweetID: 100, AuthorID: 1, CreatedAt: createdAt.Unix()}}
	for _, followerID := range []int64{2, 3} {
		got, _ := feeds.ReadNewest(ctx, followerID, 10)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("follower %d feed mismatch (-want +got):\n%s", followerID, diff)
		}
	}

	// Non-followers get nothing, including the author.
	for _, id := range []int64{1, 4} {
		got, _ := feeds.ReadNewest(ctx, id, 10)
		if len(got) != 0 {
			t.Errorf("user %d should have an empty feed, got %v", id, got)
		}
	}
}

func TestHandlerDoubleDeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	feeds := feedstore.NewMemoryFeedStore(10)
	createdAt := time.Unix(1700000000, 0)

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			return []int64{2}, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return fixedTweet(100, 1, createdAt), nil
		},
	}

	h := NewHandler(feeds, followers, tweets, time.Second)
	event := queue.NewTweetPublishedEvent(100, 1, createdAt.Unix())

	for i := 0; i < 2; i++ {
		if err := h.HandleEvent(ctx, event); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	size, _ := feeds.Size(ctx, 2)
	if size != 1 {
		t.Errorf("feed size after double delivery: got %d, want 1", size)
	}
}

func TestHandlerMissingTweetIsNoOp(t *testing.T) {
	ctx := context.Background()
	feeds := feedstore.NewMemoryFeedStore(10)

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			t.Error("followers should not be fetched for a missing tweet")
			return nil, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return nil, model.ErrTweetNotFound
		},
	}

	h := NewHandler(feeds, followers, tweets, time.Second)
	event := queue.NewTweetPublishedEvent(100, 1, time.Now().Unix())

	// A tweet deleted before fan-out is a completed no-op.
	if err := h.HandleEvent(ctx, event); err != nil {
		t.Fatalf("HandleEvent should succeed for a missing tweet, got %v", err)
	}
}

func TestHandlerOutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	feeds := feedstore.NewMemoryFeedStore(10)

	t1 := time.Unix(1700000000, 0)
	t2 := time.Unix(1700000100, 0)
	byID := map[int64]*model.Tweet{
		100: fixedTweet(100, 1, t1),
		101: fixedTweet(101, 1, t2),
	}

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			return []int64{2}, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return byID[tweetID], nil
		},
	}

	h := NewHandler(feeds, followers, tweets, time.Second)

	// Deliver the newer tweet first. Placement follows creation time, so
	// the feed still reads newest first.
	if err := h.HandleEvent(ctx, queue.NewTweetPublishedEvent(101, 1, t2.Unix())); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := h.HandleEvent(ctx, queue.NewTweetPublishedEvent(100, 1, t1.Unix())); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	got, _ := feeds.ReadNewest(ctx, 2, 10)
	want := []model.FeedEntry{
		{TweetID: 101, AuthorID: 1, CreatedAt: t2.Unix()},
		{TweetID: 100, AuthorID: 1, CreatedAt: t1.Unix()},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlerFollowEventsLeaveFeedsUntouched(t *testing.T) {
	ctx := context.Background()
	feeds := feedstore.NewMemoryFeedStore(10)
	createdAt := time.Unix(1700000000, 0)

	feeds.Add(ctx, 2, model.FeedEntry{TweetID: 100, AuthorID: 1, CreatedAt: createdAt.Unix()})

	h := NewHandler(feeds, &mockFollowerProvider{}, &mockTweetProvider{}, time.Second)

	// A new follower does not receive the back catalog, and an unfollow
	// does not revoke already-delivered entries.
	if err := h.HandleEvent(ctx, queue.NewUserFollowedEvent(3, 1)); err != nil {
		t.Fatalf("UserFollowed failed: %v", err)
	}
	if err := h.HandleEvent(ctx, queue.NewUserUnfollowedEvent(2, 1)); err != nil {
		t.Fatalf("UserUnfollowed failed: %v", err)
	}

	if size, _ := feeds.Size(ctx, 3); size != 0 {
		t.Errorf("new follower feed should stay empty, got %d entries", size)
	}
	if size, _ := feeds.Size(ctx, 2); size != 1 {
		t.Errorf("ex-follower feed should keep its entry, got %d entries", size)
	}
}

func TestHandlerTweetDeletedScrubsFeeds(t *testing.T) {
	ctx := context.Background()
	feeds := feedstore.NewMemoryFeedStore(10)
	createdAt := time.Unix(1700000000, 0)

	for _, followerID := range []int64{2, 3} {
		feeds.Add(ctx, followerID, model.FeedEntry{TweetID: 100, AuthorID: 1, CreatedAt: createdAt.Unix()})
		feeds.Add(ctx, followerID, model.FeedEntry{TweetID: 101, AuthorID: 1, CreatedAt: createdAt.Unix() + 1})
	}

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			return []int64{2, 3}, nil
		},
	}

	h := NewHandler(feeds, followers, &mockTweetProvider{}, time.Second)
	if err := h.HandleEvent(ctx, queue.NewTweetDeletedEvent(100, 1)); err != nil {
		t.Fatalf("TweetDeleted failed: %v", err)
	}

	for _, followerID := range []int64{2, 3} {
		if ok, _ := feeds.Contains(ctx, followerID, 100); ok {
			t.Errorf("follower %d still has the deleted tweet", followerID)
		}
		if ok, _ := feeds.Contains(ctx, followerID, 101); !ok {
			t.Errorf("follower %d lost an unrelated tweet", followerID)
		}
	}
}

func TestHandlerUnknownEventType(t *testing.T) {
	h := NewHandler(feedstore.NewMemoryFeedStore(10), &mockFollowerProvider{}, &mockTweetProvider{}, time.Second)

	err := h.HandleEvent(context.Background(), queue.Event{Type: "bogus"})
	if err == nil {
		t.Fatal("expected an error for an unknown event type")
	}
}

func TestHandlerSurfacesFanOutFailure(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Unix(1700000000, 0)

	// Enough failures to exhaust the local retry budget for one follower.
	feeds := &failingFeedStore{FeedStore: feedstore.NewMemoryFeedStore(10), failAdds: 10}

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			return []int64{2, 3}, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return fixedTweet(100, 1, createdAt), nil
		},
	}

	h := NewHandler(feeds, followers, tweets, 5*time.Second)
	err := h.HandleEvent(ctx, queue.NewTweetPublishedEvent(100, 1, createdAt.Unix()))
	if err == nil {
		t.Fatal("expected an error when appends keep failing")
	}
}

func TestHandlerRetriesTransientAppendFailure(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Unix(1700000000, 0)

	// One transient failure, absorbed by the local retry.
	feeds := &failingFeedStore{FeedStore: feedstore.NewMemoryFeedStore(10), failAdds: 1}

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			return []int64{2}, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return fixedTweet(100, 1, createdAt), nil
		},
	}

	h := NewHandler(feeds, followers, tweets, 5*time.Second)
	if err := h.HandleEvent(ctx, queue.NewTweetPublishedEvent(100, 1, createdAt.Unix())); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if ok, _ := feeds.Contains(ctx, 2, 100); !ok {
		t.Error("entry missing after transient failure")
	}
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestManagerEndToEndFanOut(t *testing.T) {
	ctx := context.Background()

	followRepo := repository.NewMemoryFollowRepository()
	tweetRepo, err := repository.NewMemoryTweetRepository()
	if err != nil {
		t.Fatalf("create tweet repo: %v", err)
	}
	feeds := feedstore.NewMemoryFeedStore(10)

	followRepo.Create(ctx, 2, 1)
	followRepo.Create(ctx, 3, 1)

	tweet, err := tweetRepo.Create(ctx, 1, "first post")
	if err != nil {
		t.Fatalf("create tweet: %v", err)
	}

	broker := queue.NewChannelBroker(10 * time.Millisecond)
	defer broker.Close()

	handler := NewHandler(feeds, followRepo, tweetRepo, time.Second)
	manager := NewManager(broker, handler, ManagerConfig{
		WorkerCount:   2,
		BatchSize:     10,
		BlockTimeout:  50 * time.Millisecond,
		MaxDeliveries: 5,
	})

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	event := queue.NewTweetPublishedEvent(tweet.ID, tweet.AuthorID, tweet.CreatedAt.Unix())
	if _, err := broker.Publish(ctx, queue.StreamFeed, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		a, _ := feeds.Size(ctx, 2)
		b, _ := feeds.Size(ctx, 3)
		return a == 1 && b == 1
	})

	got, _ := feeds.ReadNewest(ctx, 2, 10)
	want := []model.FeedEntry{{TweetID: tweet.ID, AuthorID: 1, CreatedAt: tweet.CreatedAt.Unix()}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}

	waitFor(t, time.Second, func() bool {
		pending, _ := broker.Pending(ctx, queue.StreamFeed, queue.ConsumerGroupFeed)
		return pending == 0
	})
}

func TestManagerDeadLettersAfterMaxDeliveries(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Unix(1700000000, 0)

	// Never recovers: every delivery fails until the budget runs out.
	feeds := &failingFeedStore{FeedStore: feedstore.NewMemoryFeedStore(10), failAdds: 1 << 20}

	followers := &mockFollowerProvider{
		getFollowerIDsFn: func(ctx context.Context, authorID int64) ([]int64, error) {
			return []int64{2}, nil
		},
	}
	tweets := &mockTweetProvider{
		getByIDFn: func(ctx context.Context, tweetID int64) (*model.Tweet, error) {
			return fixedTweet(100, 1, createdAt), nil
		},
	}

	broker := queue.NewChannelBroker(5 * time.Millisecond)
	defer broker.Close()

	handler := NewHandler(feeds, followers, tweets, 5*time.Second)
	manager := NewManager(broker, handler, ManagerConfig{
		WorkerCount:   1,
		BatchSize:     1,
		BlockTimeout:  50 * time.Millisecond,
		MaxDeliveries: 2,
	})

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start manager: %v", err)
	}
	defer manager.Stop()

	event := queue.NewTweetPublishedEvent(100, 1, createdAt.Unix())
	msgID, err := broker.Publish(ctx, queue.StreamFeed, event)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	// The message must surface in the dead-letter list, never vanish.
	waitFor(t, 10*time.Second, func() bool {
		return len(broker.DeadLetters()) == 1
	})

	dead := broker.DeadLetters()[0]
	if dead.Message.ID != msgID {
		t.Errorf("dead letter id: got %s, want %s", dead.Message.ID, msgID)
	}
	if dead.Message.Attempts != 2 {
		t.Errorf("dead letter attempts: got %d, want 2", dead.Message.Attempts)
	}
	if dead.Message.Event.TweetID != 100 {
		t.Errorf("dead letter tweet: got %d, want 100", dead.Message.Event.TweetID)
	}

	pending, _ := broker.Pending(ctx, queue.StreamFeed, queue.ConsumerGroupFeed)
	if pending != 0 {
		t.Errorf("pending after dead-letter: got %d, want 0", pending)
	}
}

func TestConsumerNameForWorkerUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		name := consumerNameForWorker(1)
		if seen[name] {
			t.Fatalf("duplicate consumer name: %s", name)
		}
		seen[name] = true
		if want := fmt.Sprintf("worker-%d-", 1); len(name) <= len(want) {
			t.Fatalf("unexpected consumer name: %s", name)
		}
	}
}
