package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewBookmarkValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   NewBookmark
		wantErr bool
	}{
		{
			name:  "title and url present",
			input: NewBookmark{Title: "Example", URL: "https://example.com", Owner: "u1"},
		},
		{
			name:    "empty title",
			input:   NewBookmark{Title: "", URL: "https://example.com"},
			wantErr: true,
		},
		{
			name:    "blank title",
			input:   NewBookmark{Title: "   ", URL: "https://example.com"},
			wantErr: true,
		},
		{
			name:    "empty url",
			input:   NewBookmark{Title: "Example", URL: ""},
			wantErr: true,
		},
		{
			name:  "url is not parsed",
			input: NewBookmark{Title: "Example", URL: "not a url"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrMissingField) {
					t.Errorf("Validate() error = %v, want ErrMissingField", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestSortNewestFirst(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	bookmarks := []Bookmark{
		{ID: 1, Title: "old", CreatedAt: t1},
		{ID: 2, Title: "new", CreatedAt: t2},
		{ID: 3, Title: "old-tie", CreatedAt: t1},
	}

	SortNewestFirst(bookmarks)

	want := []int64{2, 3, 1}
	for i, id := range want {
		if bookmarks[i].ID != id {
			t.Errorf("SortNewestFirst()[%d].ID = %d, want %d", i, bookmarks[i].ID, id)
		}
	}
}

func TestIdentityIsZero(t *testing.T) {
	if !(Identity{}).IsZero() {
		t.Error("empty identity should be zero")
	}
	if (Identity{ID: "u1"}).IsZero() {
		t.Error("identity with ID should not be zero")
	}
}
