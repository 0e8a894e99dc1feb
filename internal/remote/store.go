package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// Backends groups the pieces a Store is assembled from.
type Backends struct {
	Table    Table
	Feed     Feed
	Sessions Sessions
	SignIn   SignInStarter // optional, nil disables sign-in
}

// Store is the managed backend as a whole: a bookmarks table that emits change
// events, plus the identity side. Views never use it directly; they go through
// a token-bound Client obtained from Connect.
type Store struct {
	table    Table
	feed     Feed
	sessions Sessions
	signIn   SignInStarter
	logger   logger.Logger
	now      func() time.Time
}

// NewStore assembles a Store. Table, Feed and Sessions are required.
func NewStore(b Backends, log logger.Logger) (*Store, error) {
	if b.Table == nil || b.Feed == nil || b.Sessions == nil {
		return nil, errors.New("remote store requires table, feed and sessions")
	}
	return &Store{
		table:    b.Table,
		feed:     b.Feed,
		sessions: b.Sessions,
		signIn:   b.SignIn,
		logger:   log,
		now:      time.Now,
	}, nil
}

// Connect returns a Client acting on behalf of accessToken.
// An empty token yields a client with no session.
func (s *Store) Connect(accessToken string) Client {
	return &client{store: s, token: accessToken}
}

// Ping checks the table backend.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.table.Ping(ctx))
}

// InsertTrusted writes rec without session checks and emits the change event.
// Used by Client after access checks and by operator tooling such as import.
func (s *Store) InsertTrusted(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	if err := rec.Validate(); err != nil {
		return domain.Bookmark{}, wrap("insert", err)
	}
	row, err := s.table.Insert(ctx, rec)
	if err != nil {
		return domain.Bookmark{}, wrap("insert", err)
	}
	s.emit(ctx, domain.ChangeInsert, row)
	return row, nil
}

// SelectOwner lists rows for owner without session checks.
func (s *Store) SelectOwner(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	rows, err := s.table.SelectByOwner(ctx, owner)
	if err != nil {
		return nil, wrap("select", err)
	}
	return rows, nil
}

func (s *Store) deleteOwned(ctx context.Context, owner string, id int64) error {
	row, err := s.table.Delete(ctx, owner, id)
	if err != nil {
		return wrap("delete", err)
	}
	s.emit(ctx, domain.ChangeDelete, row)
	return nil
}

// emit publishes a change event. The write already happened, so a publish
// failure is logged and not returned.
func (s *Store) emit(ctx context.Context, t domain.ChangeType, row domain.Bookmark) {
	ev := domain.NewChangeEvent(t, row, s.now())
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish change event",
			logger.String("type", string(t)),
			logger.Int64("row_id", row.ID),
			logger.Error(err))
	}
}

func (s *Store) subscribe(ctx context.Context, table string, onEvent func(domain.ChangeEvent)) (Subscription, error) {
	if table != domain.TableBookmarks {
		return nil, wrap("subscribe", fmt.Errorf("%w: %s", ErrUnknownTable, table))
	}
	sub, err := s.feed.Subscribe(ctx, table, onEvent)
	if err != nil {
		return nil, wrap("subscribe", err)
	}
	return sub, nil
}
