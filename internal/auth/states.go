package auth

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// StateStore keeps pending sign-ins by OAuth state nonce until the provider
// calls back. Take must be atomic: a state is handed out at most once.
type StateStore interface {
	Put(ctx context.Context, state, redirectTarget string, ttl time.Duration) error
	// Take removes state and returns its redirect target. ok is false when the
	// state is unknown, expired or already taken.
	Take(ctx context.Context, state string) (redirectTarget string, ok bool, err error)
}

// cacheStates is the in-process StateStore, for single-instance deployments.
type cacheStates struct {
	mu    sync.Mutex
	items *cache.Cache
}

func newCacheStates(ttl time.Duration) *cacheStates {
	return &cacheStates{items: cache.New(ttl, 2*ttl)}
}

func (s *cacheStates) Put(_ context.Context, state, redirectTarget string, ttl time.Duration) error {
	s.items.Set(state, redirectTarget, ttl)
	return nil
}

func (s *cacheStates) Take(_ context.Context, state string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, found := s.items.Get(state)
	if !found {
		return "", false, nil
	}
	s.items.Delete(state)
	target, _ := raw.(string)
	return target, true, nil
}
