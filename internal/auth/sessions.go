package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Registry persists live sessions so they can be revoked before the token expires.
type Registry interface {
	Put(ctx context.Context, sessionID string, id domain.Identity, ttl time.Duration) error
	// Get returns remote.ErrNoSession when the session is unknown or expired.
	Get(ctx context.Context, sessionID string) (domain.Identity, error)
	Delete(ctx context.Context, sessionID string) error
}

// Sessions implements remote.Sessions on top of signed tokens and a Registry.
type Sessions struct {
	tokens   *Tokens
	registry Registry
	ttl      time.Duration
}

func NewSessions(tokens *Tokens, registry Registry, ttl time.Duration) *Sessions {
	return &Sessions{tokens: tokens, registry: registry, ttl: ttl}
}

// TTL is the lifetime of issued sessions.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue starts a session for id and returns its access token.
func (s *Sessions) Issue(ctx context.Context, id domain.Identity) (string, error) {
	if id.IsZero() {
		return "", errors.New("cannot issue a session for an empty identity")
	}
	sessionID := uuid.NewString()
	if err := s.registry.Put(ctx, sessionID, id, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return s.tokens.Sign(sessionID, id, s.ttl)
}

// Resolve verifies token and checks the session is still registered.
func (s *Sessions) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Identity{}, err
	}
	id, err := s.registry.Get(ctx, claims.ID)
	if err != nil {
		return domain.Identity{}, err
	}
	if id.ID != claims.Subject {
		return domain.Identity{}, fmt.Errorf("%w: subject mismatch", remote.ErrNoSession)
	}
	return id, nil
}

// Revoke ends the session behind token. Unverifiable tokens have nothing to revoke.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.registry.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
