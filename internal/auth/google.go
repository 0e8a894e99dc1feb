package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// ErrInvalidState is returned when a callback carries an unknown or expired state.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// GoogleConfig configures the Google sign-in flow.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string        // our /auth/google/callback, registered with Google
	StateTTL     time.Duration // how long a started sign-in stays valid (default 10m)
	States       StateStore    // nil => in-process, only valid for a single instance

	// Overrides for tests. Zero values use Google's production endpoints.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Google runs the OAuth2 authorization-code flow against Google.
// Pending sign-ins are tracked by state nonce so the callback knows where to
// send the user afterwards.
type Google struct {
	conf        *oauth2.Config
	states      StateStore
	stateTTL    time.Duration
	userInfoURL string
	logger      logger.Logger
}

func NewGoogle(cfg GoogleConfig, log logger.Logger) *Google {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	stateTTL := cfg.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}
	states := cfg.States
	if states == nil {
		states = newCacheStates(stateTTL)
	}

	return &Google{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: endpoint,
		},
		states:      states,
		stateTTL:    stateTTL,
		userInfoURL: userInfoURL,
		logger:      log,
	}
}

// SignInURL implements remote.SignInStarter.
func (g *Google) SignInURL(ctx context.Context, provider, redirectTarget string) (string, error) {
	if provider != domain.ProviderGoogle {
		return "", fmt.Errorf("%w: %s", remote.ErrUnsupportedProvider, provider)
	}
	state := uuid.NewString()
	if err := g.states.Put(ctx, state, redirectTarget, g.stateTTL); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	g.logger.Debug("google sign-in started",
		logger.String("redirect_target", redirectTarget))

	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

// Complete finishes the flow: it consumes state, exchanges code and fetches
// the user's profile. It returns the identity and the redirect target given
// when the flow started.
func (g *Google) Complete(ctx context.Context, state, code string) (domain.Identity, string, error) {
	redirectTarget, ok, err := g.states.Take(ctx, state)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("failed to load oauth state: %w", err)
	}
	if !ok {
		return domain.Identity{}, "", ErrInvalidState
	}

	token, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("code exchange failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("failed to build user info request: %w", err)
	}
	resp, err := g.conf.Client(ctx, token).Do(req)
	if err != nil {
		return domain.Identity{}, "", fmt.Errorf("failed getting user info: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return domain.Identity{}, "", fmt.Errorf("user info returned status %d", resp.StatusCode)
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return domain.Identity{}, "", fmt.Errorf("failed to parse user info: %w", err)
	}
	if user.ID == "" {
		return domain.Identity{}, "", errors.New("user info without id")
	}

	g.logger.Info("google sign-in completed",
		logger.String("user_id", user.ID),
		logger.Bool("verified_email", user.VerifiedEmail))

	return domain.Identity{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Provider: domain.ProviderGoogle,
	}, redirectTarget, nil
}
