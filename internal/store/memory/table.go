package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Table provides in-memory storage for the bookmarks table.
// It backs tests and single-process development runs.
type Table struct {
	mu     sync.RWMutex
	rows   map[int64]domain.Bookmark // ID -> Bookmark
	nextID int64
	now    func() time.Time
}

// TableOption customizes a Table.
type TableOption func(*Table)

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) TableOption {
	return func(t *Table) { t.now = now }
}

// NewTable creates an empty table
func NewTable(opts ...TableOption) *Table {
	t := &Table{
		rows: make(map[int64]domain.Bookmark),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SelectByOwner returns a fresh slice with the owner's rows, newest first
func (t *Table) SelectByOwner(_ context.Context, owner string) ([]domain.Bookmark, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rows := make([]domain.Bookmark, 0, len(t.rows))
	for _, row := range t.rows {
		if row.Owner == owner {
			rows = append(rows, row)
		}
	}
	domain.SortNewestFirst(rows)
	return rows, nil
}

// Insert stores a new row and assigns its ID and CreatedAt
func (t *Table) Insert(_ context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	row := domain.Bookmark{
		ID:        t.nextID,
		Title:     rec.Title,
		URL:       rec.URL,
		Owner:     rec.Owner,
		CreatedAt: t.now(),
	}
	t.rows[row.ID] = row
	return row, nil
}

// Delete removes a row owned by owner
func (t *Table) Delete(_ context.Context, owner string, id int64) (domain.Bookmark, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.rows[id]
	if !ok || row.Owner != owner {
		return domain.Bookmark{}, remote.ErrNotFound
	}
	delete(t.rows, id)
	return row, nil
}

// Ping always succeeds
func (t *Table) Ping(context.Context) error { return nil }

// Count returns the number of rows across all owners
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.rows)
}
