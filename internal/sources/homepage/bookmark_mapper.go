package homepage

import (
	"errors"
	"strings"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
)

// ErrNoBookmarks is returned when a config holds no usable entry.
var ErrNoBookmarks = errors.New("no valid bookmarks found in config")

// BookmarkMapper converts Homepage bookmark config to insert records
type BookmarkMapper struct{}

// NewBookmarkMapper creates a new bookmark mapper
func NewBookmarkMapper() *BookmarkMapper {
	return &BookmarkMapper{}
}

// MapBookmarks converts config into records owned by owner. Entries without an
// href are skipped and a URL seen twice is kept once.
func (m *BookmarkMapper) MapBookmarks(config BookmarksConfig, owner string) ([]domain.NewBookmark, error) {
	records := make([]domain.NewBookmark, 0)
	seen := make(map[string]bool)

	for _, category := range config {
		for _, bookmarkList := range category {
			for _, bookmarkMap := range bookmarkList {
				for bookmarkName, entryList := range bookmarkMap {
					// Each bookmark has a list with a single entry
					if len(entryList) == 0 {
						continue
					}
					entry := entryList[0]

					href := strings.TrimSpace(entry.Href)
					if href == "" || seen[href] {
						continue
					}

					// Bookmark name is the title, abbr only when the name is blank
					title := strings.TrimSpace(bookmarkName)
					if title == "" {
						title = strings.TrimSpace(entry.Abbr)
					}
					if title == "" {
						continue
					}

					seen[href] = true
					records = append(records, domain.NewBookmark{
						Title: title,
						URL:   href,
						Owner: owner,
					})
				}
			}
		}
	}

	if len(records) == 0 {
		return nil, ErrNoBookmarks
	}

	return records, nil
}
