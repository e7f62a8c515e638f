package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"microblog/internal/feedstore"
	"microblog/internal/model"
	"microblog/internal/repository"
)

func seedMaterializedFeed(t *testing.T, followerID int64, entries ...model.FeedEntry) *FeedReader {
	t.Helper()
	ctx := context.Background()

	feeds := feedstore.NewMemoryFeedStore(100)
	for _, e := range entries {
		if err := feeds.Add(ctx, followerID, e); err != nil {
			t.Fatalf("seed feed: %v", err)
		}
	}
	return NewFeedReader(NewMaterializedStrategy(feeds))
}

func TestGetFeedNegativeCount(t *testing.T) {
	reader := seedMaterializedFeed(t, 1)

	_, err := reader.GetFeed(context.Background(), 1, -1)
	if !errors.Is(err, model.ErrNegativeCount) {
		t.Fatalf("got %v, want ErrNegativeCount", err)
	}
	if !model.IsValidation(err) {
		t.Error("negative count should classify as a validation error")
	}
}

func TestGetFeedZeroCount(t *testing.T) {
	reader := seedMaterializedFeed(t, 1,
		model.FeedEntry{TweetID: 100, AuthorID: 2, CreatedAt: 1000},
	)

	got, err := reader.GetFeed(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("count 0: got %v, want empty slice", got)
	}
}

func TestGetFeedUnknownFollowerIsEmptyNotError(t *testing.T) {
	reader := seedMaterializedFeed(t, 1)

	got, err := reader.GetFeed(context.Background(), 999, 10)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("unknown follower: got %v, want empty slice", got)
	}
}

func TestGetFeedNewestFirstClamped(t *testing.T) {
	entries := []model.FeedEntry{
		{TweetID: 100, AuthorID: 2, CreatedAt: 1000},
		{TweetID: 101, AuthorID: 3, CreatedAt: 2000},
		{TweetID: 102, AuthorID: 2, CreatedAt: 3000},
	}
	reader := seedMaterializedFeed(t, 1, entries...)
	ctx := context.Background()

	got, err := reader.GetFeed(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	want := []model.FeedEntry{entries[2], entries[1]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}

	// Asking for more than exists returns everything, newest first.
	got, err = reader.GetFeed(ctx, 1, 50)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	want = []model.FeedEntry{entries[2], entries[1], entries[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}
}

func TestOnDemandStrategy(t *testing.T) {
	ctx := context.Background()

	followRepo := repository.NewMemoryFollowRepository()
	tweetRepo, err := repository.NewMemoryTweetRepository()
	if err != nil {
		t.Fatalf("create tweet repo: %v", err)
	}

	followRepo.Create(ctx, 1, 2)
	followRepo.Create(ctx, 1, 3)

	var tweets []*model.Tweet
	for _, authorID := range []int64{2, 3, 2, 4} {
		tweet, err := tweetRepo.Create(ctx, authorID, "hello")
		if err != nil {
			t.Fatalf("create tweet: %v", err)
		}
		tweets = append(tweets, tweet)
		time.Sleep(time.Millisecond)
	}

	reader := NewFeedReader(NewOnDemandStrategy(followRepo, tweetRepo))

	got, err := reader.GetFeed(ctx, 1, 10)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}

	// Author 4 is not followed; followed authors' tweets come newest first.
	var want []model.FeedEntry
	for _, i := range []int{2, 1, 0} {
		want = append(want, model.FeedEntry{
			TweetID:   tweets[i].ID,
			AuthorID:  tweets[i].AuthorID,
			CreatedAt: tweets[i].CreatedAt.Unix(),
		})
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("feed mismatch (-want +got):\n%s", diff)
	}

	got, err = reader.GetFeed(ctx, 1, 2)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limited read: got %d entries, want 2", len(got))
	}
}

func TestOnDemandStrategyNoFollowees(t *testing.T) {
	followRepo := repository.NewMemoryFollowRepository()
	tweetRepo, err := repository.NewMemoryTweetRepository()
	if err != nil {
		t.Fatalf("create tweet repo: %v", err)
	}

	reader := NewFeedReader(NewOnDemandStrategy(followRepo, tweetRepo))

	got, err := reader.GetFeed(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("GetFeed failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("no followees: got %v, want empty slice", got)
	}
}
