package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"microblog/internal/config"
	"microblog/internal/database"
	"microblog/internal/feedstore"
	"microblog/internal/queue"
	"microblog/internal/redis"
	"microblog/internal/repository"
	"microblog/internal/service"
)

// srv holds the wired services shared by the subcommands.
type srv struct {
	users  repository.UserRepository
	graph  *service.SocialGraphService
	tweets *service.TweetService
	reader *service.FeedReader

	cleanup []func() error
}

var server srv

func (s *srv) setup(ct *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.cleanup = append(s.cleanup, db.Close)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	rdb, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	s.cleanup = append(s.cleanup, rdb.Close)

	if err := rdb.Ping(ct.Context); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	followRepo := repository.NewFollowRepository(db)
	tweetRepo := repository.NewTweetRepository(db)

	feeds := feedstore.NewRedisFeedStore(rdb.Client, cfg.FeedRetention)
	publisher := queue.NewRedisPublisher(rdb.Client)

	strategy, err := service.NewReadStrategy(cfg.FeedStrategy, feeds, followRepo, tweetRepo)
	if err != nil {
		return err
	}

	s.users = userRepo
	s.graph = service.NewSocialGraphService(followRepo, userRepo, publisher)
	s.tweets = service.NewTweetService(tweetRepo, userRepo, publisher)
	s.reader = service.NewFeedReader(strategy)
	return nil
}

func (s *srv) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		if err := s.cleanup[i](); err != nil {
			log.Printf("cleanup: %v", err)
		}
	}
}

func idArg(ct *cli.Context, i int, name string) (int64, error) {
	id, err := strconv.ParseInt(ct.Args().Get(i), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a numeric id", name)
	}
	return id, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "microblog"
	app.Usage = "microblog admin commands"
	app.Action = cli.ShowAppHelp
	app.Before = server.setup
	app.After = func(ct *cli.Context) error {
		server.close()
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:      "create-user",
			Usage:     "Register a user handle",
			ArgsUsage: "<login>",
			Action: func(ct *cli.Context) error {
				login := ct.Args().Get(0)
				if login == "" {
					return fmt.Errorf("login is required")
				}
				user, err := server.users.Create(ct.Context, login)
				if err != nil {
					return err
				}
				fmt.Printf("created user %d (%s)\n", user.ID, user.Login)
				return nil
			},
		},
		{
			Name:      "follow",
			Usage:     "Subscribe a follower to an author",
			ArgsUsage: "<followerID> <authorID>",
			Action: func(ct *cli.Context) error {
				followerID, err := idArg(ct, 0, "followerID")
				if err != nil {
					return err
				}
				authorID, err := idArg(ct, 1, "authorID")
				if err != nil {
					return err
				}
				if err := server.graph.Follow(ct.Context, followerID, authorID); err != nil {
					return err
				}
				fmt.Printf("%d follows %d\n", followerID, authorID)
				return nil
			},
		},
		{
			Name:      "unfollow",
			Usage:     "Remove a follower's subscription",
			ArgsUsage: "<followerID> <authorID>",
			Action: func(ct *cli.Context) error {
				followerID, err := idArg(ct, 0, "followerID")
				if err != nil {
					return err
				}
				authorID, err := idArg(ct, 1, "authorID")
				if err != nil {
					return err
				}
				if err := server.graph.Unfollow(ct.Context, followerID, authorID); err != nil {
					return err
				}
				fmt.Printf("%d no longer follows %d\n", followerID, authorID)
				return nil
			},
		},
		{
			Name:      "tweet",
			Usage:     "Publish a tweet (fan-out happens asynchronously)",
			ArgsUsage: "<authorID> <text>",
			Action: func(ct *cli.Context) error {
				authorID, err := idArg(ct, 0, "authorID")
				if err != nil {
					return err
				}
				text := strings.Join(ct.Args().Slice()[1:], " ")
				tweet, err := server.tweets.Create(ct.Context, authorID, text)
				if err != nil {
					return err
				}
				fmt.Printf("tweet %d published at %s\n", tweet.ID, tweet.CreatedAt.Format("2006-01-02 15:04:05"))
				return nil
			},
		},
		{
			Name:      "delete-tweet",
			Usage:     "Delete a tweet and scrub it from feeds",
			ArgsUsage: "<tweetID> <authorID>",
			Action: func(ct *cli.Context) error {
				tweetID, err := idArg(ct, 0, "tweetID")
				if err != nil {
					return err
				}
				authorID, err := idArg(ct, 1, "authorID")
				if err != nil {
					return err
				}
				if err := server.tweets.Delete(ct.Context, tweetID, authorID); err != nil {
					return err
				}
				fmt.Printf("tweet %d deleted\n", tweetID)
				return nil
			},
		},
		{
			Name:      "feed",
			Usage:     "Read a follower's feed, newest first",
			ArgsUsage: "<followerID>",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 20, Usage: "max entries to return"},
			},
			Action: func(ct *cli.Context) error {
				followerID, err := idArg(ct, 0, "followerID")
				if err != nil {
					return err
				}
				entries, err := server.reader.GetFeed(ct.Context, followerID, ct.Int("count"))
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Println("feed is empty")
					return nil
				}
				for _, e := range entries {
					fmt.Printf("tweet=%d author=%d createdAt=%d\n", e.TweetID, e.AuthorID, e.CreatedAt)
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
