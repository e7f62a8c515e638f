package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string

	// FeedRetention is the max number of entries kept per follower feed.
	FeedRetention int

	// FeedStrategy selects how GetFeed answers: "materialized" reads the
	// precomputed feed store, "ondemand" joins over followed authors' tweets.
	FeedStrategy string

	WorkerCount   int
	MaxDeliveries int
	FanoutTimeout time.Duration
	ConsumerBlock time.Duration
	ConsumerBatch int
	ClaimMinIdle  time.Duration
}

func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	retention := intEnv("FEED_RETENTION", 500)
	workers := intEnv("FEED_WORKERS", 2)
	maxDeliveries := intEnv("FEED_MAX_DELIVERIES", 5)
	batch := intEnv("FEED_CONSUMER_BATCH", 10)

	strategy := os.Getenv("FEED_STRATEGY")
	if strategy == "" {
		strategy = "materialized"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisURL: redisURL,

		FeedRetention: retention,
		FeedStrategy:  strategy,

		WorkerCount:   workers,
		MaxDeliveries: maxDeliveries,
		FanoutTimeout: durationEnv("FANOUT_TIMEOUT", 30*time.Second),
		ConsumerBlock: durationEnv("FEED_CONSUMER_BLOCK", 5*time.Second),
		ConsumerBatch: batch,
		ClaimMinIdle:  durationEnv("FEED_CLAIM_MIN_IDLE", time.Minute),
	}, nil
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
