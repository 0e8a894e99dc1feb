package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Claims is the payload of a session token. The JWT ID is the session ID
// looked up in the registry; the subject is the identity ID.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewTokens(secret []byte, issuer string) (*Tokens, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	return &Tokens{secret: secret, issuer: issuer, now: time.Now}, nil
}

// Sign issues a token for id bound to sessionID.
func (t *Tokens) Sign(sessionID string, id domain.Identity, ttl time.Duration) (string, error) {
	now := t.now()
	claims := Claims{
		Email:    id.Email,
		Name:     id.Name,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   id.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies token. Any verification failure is reported as remote.ErrNoSession.
func (t *Tokens) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrNoSession, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: token without session", remote.ErrNoSession)
	}
	return claims, nil
}
