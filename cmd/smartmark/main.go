package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("❌ smartmark: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "smartmark",
	Short: "smartmark is a self-hosted bookmark manager with live views",
	Long: `smartmark stores per-user bookmarks behind Google sign-in and pushes
every change to the user's open views as it happens.

Configuration is read from SMARTMARK_* environment variables. Running
smartmark without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)
}
