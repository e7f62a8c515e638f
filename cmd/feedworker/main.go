package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"microblog/internal/config"
	"microblog/internal/database"
	"microblog/internal/feedstore"
	"microblog/internal/queue"
	"microblog/internal/redis"
	"microblog/internal/repository"
	"microblog/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer rdb.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rdb.Ping(ctx); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	followRepo := repository.NewFollowRepository(db)
	tweetRepo := repository.NewTweetRepository(db)

	feeds := feedstore.NewRedisFeedStore(rdb.Client, cfg.FeedRetention)
	consumer := queue.NewRedisConsumer(rdb.Client, cfg.ClaimMinIdle)
	handler := worker.NewHandler(feeds, followRepo, tweetRepo, cfg.FanoutTimeout)

	manager := worker.NewManager(consumer, handler, worker.ManagerConfig{
		WorkerCount:   cfg.WorkerCount,
		BatchSize:     int64(cfg.ConsumerBatch),
		BlockTimeout:  cfg.ConsumerBlock,
		MaxDeliveries: int64(cfg.MaxDeliveries),
	})

	if err := manager.Start(ctx); err != nil {
		log.Fatalf("start workers: %v", err)
	}

	log.Println("Feed worker started")

	<-ctx.Done()
	manager.Stop()

	log.Println("Feed worker stopped")
}
