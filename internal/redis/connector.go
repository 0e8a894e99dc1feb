package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/smartmark/internal/connect"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// ConnectOptions defines the Redis client and its startup retry behavior.
type ConnectOptions struct {
	Addr         string        // Redis address (ex: "localhost:6379")
	User         string        // Optional username
	Password     string        // Optional password
	RedisDB      int           // Redis DB number
	DialTimeout  time.Duration // Redis dial timeout
	ReadTimeout  time.Duration // Redis read timeout
	WriteTimeout time.Duration // Redis write timeout
	PoolSize     int           // Redis connection pool size

	Retry connect.Policy
}

// New creates a Redis client and waits until it answers PING.
// Returns error if no connection is established within Retry.ConnectTimeout.
func New(ctx context.Context, opts ConnectOptions, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.User,
		Password:     opts.Password,
		DB:           opts.RedisDB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := connect.Retry(ctx, "redis", opts.Addr, opts.Retry, ping, log); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
