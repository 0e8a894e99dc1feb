package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/smartmark/internal/app"
	"github.com/MrSnakeDoc/smartmark/internal/config"
	"github.com/MrSnakeDoc/smartmark/internal/sources/homepage"
)

var importOwner string

var importCmd = &cobra.Command{
	Use:   "import <bookmarks.yaml>",
	Short: "Import a Homepage bookmarks.yaml into one user's bookmarks",
	Long: `Reads a Homepage bookmarks.yaml and inserts every entry whose URL the
owner does not have yet. Running it twice on the same file adds nothing.
Open views of the owner pick the new rows up through the change feed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := app.NewLogger(cfg)
		defer func() { _ = log.Sync() }()

		owner := importOwner
		if owner == "" {
			owner = cfg.ImportOwner
		}
		if owner == "" {
			return fmt.Errorf("--owner is required (or set SMARTMARK_IMPORT_OWNER)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := app.OpenBackends(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer b.Close(log)

		res, err := homepage.NewImporter(args[0], b.Store, log).Import(ctx, owner)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d bookmarks (%d already present)\n", res.Added, res.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importOwner, "owner", "", "user id the bookmarks belong to")
}
