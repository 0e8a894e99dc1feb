package memory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// SessionRegistry keeps live sessions in process memory with expiry.
type SessionRegistry struct {
	cache *cache.Cache
}

// NewSessionRegistry creates a registry whose entries expire after ttl by
// default. Expired entries are purged every cleanup interval.
func NewSessionRegistry(ttl, cleanup time.Duration) *SessionRegistry {
	return &SessionRegistry{cache: cache.New(ttl, cleanup)}
}

func (r *SessionRegistry) Put(_ context.Context, sessionID string, id domain.Identity, ttl time.Duration) error {
	r.cache.Set(sessionID, id, ttl)
	return nil
}

func (r *SessionRegistry) Get(_ context.Context, sessionID string) (domain.Identity, error) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(domain.Identity), nil
	}
	return domain.Identity{}, remote.ErrNoSession
}

func (r *SessionRegistry) Delete(_ context.Context, sessionID string) error {
	r.cache.Delete(sessionID)
	return nil
}

// Len returns the number of unexpired sessions.
func (r *SessionRegistry) Len() int {
	return r.cache.ItemCount()
}
