package remote

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
)

// Client is the remote store as seen by one view: every call acts on behalf of
// the access token the client was connected with, and row visibility is
// decided here rather than by the caller.
type Client interface {
	CurrentIdentity(ctx context.Context) (domain.Identity, error)
	SignInURL(ctx context.Context, provider, redirectTarget string) (string, error)
	SignOut(ctx context.Context) error

	SelectAll(ctx context.Context) ([]domain.Bookmark, error)
	Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error)
	DeleteByID(ctx context.Context, id int64) error

	Subscribe(ctx context.Context, table string, onEvent func(domain.ChangeEvent)) (Subscription, error)
}

// Connector hands out token-bound clients.
type Connector interface {
	Connect(accessToken string) Client
}

type client struct {
	store *Store
	token string
}

func (c *client) CurrentIdentity(ctx context.Context) (domain.Identity, error) {
	if c.token == "" {
		return domain.Identity{}, wrap("identity", ErrNoSession)
	}
	id, err := c.store.sessions.Resolve(ctx, c.token)
	if err != nil {
		return domain.Identity{}, wrap("identity", err)
	}
	if id.IsZero() {
		return domain.Identity{}, wrap("identity", ErrNoSession)
	}
	return id, nil
}

func (c *client) SignInURL(ctx context.Context, provider, redirectTarget string) (string, error) {
	if provider != domain.ProviderGoogle {
		return "", wrap("sign_in", fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider))
	}
	if c.store.signIn == nil {
		return "", wrap("sign_in", fmt.Errorf("%w: sign-in not configured", ErrUnsupportedProvider))
	}
	u, err := c.store.signIn.SignInURL(ctx, provider, redirectTarget)
	if err != nil {
		return "", wrap("sign_in", err)
	}
	return u, nil
}

// SignOut revokes the token. Signing out without a session is a no-op.
func (c *client) SignOut(ctx context.Context) error {
	if c.token == "" {
		return nil
	}
	return wrap("sign_out", c.store.sessions.Revoke(ctx, c.token))
}

func (c *client) SelectAll(ctx context.Context) ([]domain.Bookmark, error) {
	id, err := c.CurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.SelectOwner(ctx, id.ID)
}

func (c *client) Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	id, err := c.CurrentIdentity(ctx)
	if err != nil {
		return domain.Bookmark{}, err
	}
	if rec.Owner != id.ID {
		return domain.Bookmark{}, wrap("insert", ErrForbidden)
	}
	return c.store.InsertTrusted(ctx, rec)
}

func (c *client) DeleteByID(ctx context.Context, id int64) error {
	ident, err := c.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	return c.store.deleteOwned(ctx, ident.ID, id)
}

// Subscribe is filtered by table only. Events for other owners are delivered
// too; the subsequent SelectAll applies the row rules.
func (c *client) Subscribe(ctx context.Context, table string, onEvent func(domain.ChangeEvent)) (Subscription, error) {
	if _, err := c.CurrentIdentity(ctx); err != nil {
		return nil, err
	}
	return c.store.subscribe(ctx, table, onEvent)
}
