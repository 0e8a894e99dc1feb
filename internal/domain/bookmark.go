package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TableBookmarks is the name of the remote table holding bookmarks.
const TableBookmarks = "bookmarks"

// ErrMissingField is returned when a required bookmark field is empty.
var ErrMissingField = errors.New("missing required field")

// Bookmark is a single saved link as stored by the remote table.
//
// Bookmarks are never edited in place. They are created, observed through
// refreshes, and eventually deleted (locally or by another client).
type Bookmark struct {
	// ─────────────────────────────
	// Identity (remote-assigned)
	// ─────────────────────────────

	// ID is assigned by the remote store and unique within the table.
	ID int64 `json:"id" gorm:"primaryKey;autoIncrement"`

	// ─────────────────────────────
	// Content
	// ─────────────────────────────

	// Title is the human label shown in the view.
	// Example: "Example"
	Title string `json:"title" gorm:"not null"`

	// URL is the link target.
	// Example: https://example.com
	URL string `json:"url" gorm:"not null"`

	// ─────────────────────────────
	// Ownership & metadata
	// ─────────────────────────────

	// Owner is the identity ID of the principal that created the row.
	// The remote store guarantees it equals the creating session's identity.
	Owner string `json:"user_id" gorm:"column:user_id;index;not null"`

	// CreatedAt is set by the remote store on insert.
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName pins the relational table name.
func (Bookmark) TableName() string { return TableBookmarks }

// NewBookmark is the insert record sent to the remote table.
type NewBookmark struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Owner string `json:"user_id"`
}

// Validate checks required-field presence. Nothing beyond presence is checked.
func (n NewBookmark) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("title: %w", ErrMissingField)
	}
	if strings.TrimSpace(n.URL) == "" {
		return fmt.Errorf("url: %w", ErrMissingField)
	}
	return nil
}

// SortNewestFirst orders bookmarks by CreatedAt descending.
// Rows created in the same instant fall back to ID descending so the order is total.
func SortNewestFirst(bookmarks []Bookmark) {
	sort.SliceStable(bookmarks, func(i, j int) bool {
		a, b := bookmarks[i], bookmarks[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
