package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dbPath     string
	configPath string
	ephemeral  bool
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feed-session",
	Short: "Inspect and drive a feed content store",
	Long: `A CLI for the feed session engine.

The feed keeps one canonical content tree (HEAD) plus derived sessions
that consumers page through. This tool commits mutation batches to HEAD,
manages sessions and inspects the persisted store.

Features:
  • Commit mutation batches from YAML or JSON files
  • Render HEAD as Markdown, JSON, JSONL or YAML
  • Create, list and remove derived sessions
  • Reset HEAD and collect unreachable content
  • Diagnostics for every engine component

Quick Start:
  feed-session commit batch.yaml         # Apply a mutation batch
  feed-session show                      # Render HEAD
  feed-session sessions                  # List derived sessions

The database defaults to $FEED_SESSION_DB or ~/.feed-session/feed.db.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file, then applies command line overrides
func loadConfig() (internal.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("FEED_SESSION_CONFIG")
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if ephemeral {
		cfg.Ephemeral = true
	}
	return cfg, cfg.Validate()
}

// openFeed opens and initializes the feed, waiting for persisted sessions
// to be restored.
func openFeed(ctx context.Context, opts internal.Options) (*internal.Feed, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	feed, err := internal.OpenFeed(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := feed.Initialize(ctx); err != nil {
		_ = feed.Close()
		return nil, err
	}
	feed.Flush()
	return feed, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the feed database (default $FEED_SESSION_DB or ~/.feed-session/feed.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default $FEED_SESSION_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Use an in-memory store that is discarded on exit")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
