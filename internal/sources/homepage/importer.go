package homepage

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/smartmark/internal/domain"
	"github.com/MrSnakeDoc/smartmark/internal/logger"
)

// Target is where imported bookmarks are written. Writes go through the
// store so every insert also emits a change event for live views.
type Target interface {
	SelectOwner(ctx context.Context, owner string) ([]domain.Bookmark, error)
	InsertTrusted(ctx context.Context, rec domain.NewBookmark) (domain.Bookmark, error)
}

// ImportResult summarizes one import run.
type ImportResult struct {
	Added   int
	Skipped int // already present for the owner
}

// Importer copies a bookmarks.yaml into one owner's table.
type Importer struct {
	loader *BookmarkLoader
	mapper *BookmarkMapper
	target Target
	logger logger.Logger
}

func NewImporter(bookmarkFile string, target Target, log logger.Logger) *Importer {
	return &Importer{
		loader: NewBookmarkLoader(bookmarkFile),
		mapper: NewBookmarkMapper(),
		target: target,
		logger: log,
	}
}

// Import adds every bookmark of the file whose URL owner does not have yet.
// Running it again with an unchanged file adds nothing.
func (im *Importer) Import(ctx context.Context, owner string) (ImportResult, error) {
	var res ImportResult
	if owner == "" {
		return res, fmt.Errorf("import requires an owner")
	}

	config, err := im.loader.Load()
	if err != nil {
		return res, err
	}

	records, err := im.mapper.MapBookmarks(config, owner)
	if err != nil {
		return res, fmt.Errorf("failed to map bookmarks: %w", err)
	}

	existing, err := im.target.SelectOwner(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("failed to list existing bookmarks: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, bm := range existing {
		have[bm.URL] = true
	}

	for _, rec := range records {
		if have[rec.URL] {
			res.Skipped++
			continue
		}
		if _, err := im.target.InsertTrusted(ctx, rec); err != nil {
			return res, fmt.Errorf("failed to import %q: %w", rec.URL, err)
		}
		have[rec.URL] = true
		res.Added++
	}

	im.logger.Info("bookmarks imported",
		logger.String("file", im.loader.Path()),
		logger.String("user_id", owner),
		logger.Int("added", res.Added),
		logger.Int("skipped", res.Skipped))

	return res, nil
}
