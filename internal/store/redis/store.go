// Package redis implements the bookmarks table, the change feed and the
// session registry on Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store handles Redis operations for bookmark rows
type Store struct {
	client *redis.Client
	now    func() time.Time
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		now:    time.Now,
	}
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
