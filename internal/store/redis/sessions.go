package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// SessionRegistry keeps live sessions in Redis so they survive restarts and
// are shared by every replica.
type SessionRegistry struct {
	client *redis.Client
}

func NewSessionRegistry(client *redis.Client) *SessionRegistry {
	return &SessionRegistry{client: client}
}

// Put stores a session that expires after ttl
func (r *SessionRegistry) Put(ctx context.Context, sessionID string, id domain.Identity, ttl time.Duration) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, SessionKey(sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Get retrieves a session
func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (domain.Identity, error) {
	data, err := r.client.Get(ctx, SessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Identity{}, remote.ErrNoSession
		}
		return domain.Identity{}, fmt.Errorf("failed to get session: %w", err)
	}

	var id domain.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return domain.Identity{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return id, nil
}

// Delete removes a session
func (r *SessionRegistry) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, SessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
