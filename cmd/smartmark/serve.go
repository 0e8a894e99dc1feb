package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/smartmark/internal/app"
	"github.com/MrSnakeDoc/smartmark/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	log := app.NewLogger(cfg)
	defer func() { _ = log.Sync() }()

	a, err := app.New(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	return a.Run()
}
