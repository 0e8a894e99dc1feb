package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OAuthStates keeps pending sign-ins in Redis, so the callback may land on any
// replica. GETDEL hands each state out exactly once.
type OAuthStates struct {
	client *redis.Client
}

func NewOAuthStates(client *redis.Client) *OAuthStates {
	return &OAuthStates{client: client}
}

// Put stores the redirect target of a started sign-in
func (s *OAuthStates) Put(ctx context.Context, state, redirectTarget string, ttl time.Duration) error {
	if err := s.client.Set(ctx, OAuthStateKey(state), redirectTarget, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	return nil
}

// Take consumes a state
func (s *OAuthStates) Take(ctx context.Context, state string) (string, bool, error) {
	target, err := s.client.GetDel(ctx, OAuthStateKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to take oauth state: %w", err)
	}
	return target, true, nil
}
