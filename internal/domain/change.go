package domain

import "time"

// ChangeType is the kind of row-level change reported by the remote table.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a row-level change notification.
// Listeners must not rely on the payload beyond logging: any event means "refresh".
type ChangeEvent struct {
	Type  ChangeType `json:"type"`
	Table string     `json:"table"`
	RowID int64      `json:"row_id"`
	Owner string     `json:"user_id,omitempty"`
	At    time.Time  `json:"at"`
}

// NewChangeEvent builds an event for the bookmarks table stamped with now.
func NewChangeEvent(t ChangeType, row Bookmark, now time.Time) ChangeEvent {
	return ChangeEvent{
		Type:  t,
		Table: TableBookmarks,
		RowID: row.ID,
		Owner: row.Owner,
		At:    now,
	}
}
