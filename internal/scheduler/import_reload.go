// Package scheduler runs background jobs on a ticker.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/smartmark/internal/logger"
	"github.com/MrSnakeDoc/smartmark/internal/sources/homepage"
)

// Importer is the part of homepage.Importer the reloader drives.
type Importer interface {
	Import(ctx context.Context, owner string) (homepage.ImportResult, error)
}

// ImportReloader periodically imports a Homepage bookmarks.yaml into one
// owner's table, so edits to the file show up in the owner's live views.
type ImportReloader struct {
	importer      Importer
	owner         string
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}
}

// NewImportReloader creates a new import reloader. manualTrigger may be nil.
func NewImportReloader(
	importer Importer,
	owner string,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *ImportReloader {
	return &ImportReloader{
		importer:      importer,
		owner:         owner,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start imports once, then keeps importing on every tick or manual trigger.
func (ir *ImportReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := ir.Reload(ctx); err != nil {
		return fmt.Errorf("initial bookmark import failed: %w", err)
	}

	ticker := time.NewTicker(ir.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ir.Reload(ctx); err != nil {
					ir.logger.Error("failed to import bookmarks",
						logger.Error(err))
				}
			case <-ir.manualTrigger:
				ir.logger.Info("manual bookmark import triggered")
				if err := ir.Reload(ctx); err != nil {
					ir.logger.Error("failed to import bookmarks",
						logger.Error(err))
				}
			case <-ir.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader. Safe to call more than once.
func (ir *ImportReloader) Stop() {
	ir.stopOnce.Do(func() { close(ir.stopCh) })
}

// Reload runs one import.
func (ir *ImportReloader) Reload(ctx context.Context) error {
	res, err := ir.importer.Import(ctx, ir.owner)
	if err != nil {
		return err
	}
	if res.Added > 0 {
		ir.logger.Info("new bookmarks picked up from file",
			logger.Int("added", res.Added))
	}
	return nil
}
