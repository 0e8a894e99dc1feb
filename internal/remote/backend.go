package remote

import (
	"context"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
)

// Table is the owner-explicit row storage a backend provides.
// Access rules are applied by Client before any of these are called.
type Table interface {
	// SelectByOwner returns the owner's rows, newest first.
	SelectByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error)
	// Insert stores rec, assigning ID and CreatedAt.
	Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error)
	// Delete removes the row only if it belongs to owner. Returns ErrNotFound otherwise.
	Delete(ctx context.Context, owner string, id int64) (domain.Bookmark, error)
	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}

// Subscription is a standing change-notification registration.
type Subscription interface {
	ID() string
	// Unsubscribe releases the subscription. Calling it twice is a no-op.
	Unsubscribe() error
}

// Feed carries row-level change events between every client of the store.
type Feed interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
	Subscribe(ctx context.Context, table string, onEvent func(domain.ChangeEvent)) (Subscription, error)
}

// Sessions maps access tokens to identities.
type Sessions interface {
	// Resolve returns ErrNoSession for unknown, expired or revoked tokens.
	Resolve(ctx context.Context, token string) (domain.Identity, error)
	Revoke(ctx context.Context, token string) error
}

// SignInStarter begins an external sign-in flow.
type SignInStarter interface {
	// SignInURL returns where to send the user. After the provider round trip
	// the user lands back on redirectTarget with a session.
	SignInURL(ctx context.Context, provider, redirectTarget string) (string, error)
}
