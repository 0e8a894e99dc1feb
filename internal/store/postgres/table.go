package postgres

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/remote"
)

// Table is the bookmarks table backed by PostgreSQL
type Table struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTable(db *gorm.DB) *Table {
	return &Table{db: db, now: time.Now}
}

// SelectByOwner returns owner's rows, newest first
func (t *Table) SelectByOwner(ctx context.Context, owner string) ([]domain.Bookmark, error) {
	rows := make([]domain.Bookmark, 0)
	err := t.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at desc, id desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select bookmarks: %w", err)
	}
	return rows, nil
}

// Insert stores a new row; the database assigns the ID
func (t *Table) Insert(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error) {
	row := domain.Bookmark{
		Title:     rec.Title,
		URL:       rec.URL,
		Owner:     rec.Owner,
		CreatedAt: t.now().UTC(),
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return row, nil
}

// Delete removes a row owned by owner and returns it
func (t *Table) Delete(ctx context.Context, owner string, id int64) (domain.Bookmark, error) {
	var row domain.Bookmark
	res := t.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("user_id = ? AND id = ?", owner, id).
		Delete(&row)
	if res.Error != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to delete bookmark: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Bookmark{}, remote.ErrNotFound
	}
	return row, nil
}

// Ping checks the connection
func (t *Table) Ping(ctx context.Context) error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// redactDSN hides the password of a URL-style DSN for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "postgres"
	}
	return u.Redacted()
}
