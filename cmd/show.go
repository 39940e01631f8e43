package cmd

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/kuoruan/feed-session/internal"
	"github.com/kuoruan/feed-session/internal/export"
	"github.com/spf13/cobra"
)

var (
	showPretty  bool
	showStyle   string
	showWrap    int
	showNoCache bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Render HEAD as Markdown",
	Long: `Render the current HEAD tree as Markdown.

Snapshots of file databases are cached under $FEED_SESSION_CACHE_DIR
(default ~/.feed-session/cache) until the database changes.

Examples:
  feed-session show
  feed-session show --pretty --style light
  feed-session show --no-cache`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := loadSnapshot(cmd.Context(), !showNoCache)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := (&export.MarkdownExporter{}).Export(snapshot, &buf); err != nil {
			return fmt.Errorf("failed to render HEAD: %w", err)
		}

		if !showPretty {
			_, err = cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(showStyle),
			glamour.WithWordWrap(showWrap),
		)
		if err != nil {
			return fmt.Errorf("failed to create renderer: %w", err)
		}
		rendered, err := r.Render(buf.String())
		if err != nil {
			return fmt.Errorf("failed to render HEAD: %w", err)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), rendered)
		return err
	},
}

// loadSnapshot returns the HEAD snapshot, from the snapshot cache when it is
// still current. An empty HEAD yields an empty snapshot.
func loadSnapshot(ctx context.Context, useCache bool) (*internal.Snapshot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	useCache = useCache && !cfg.Ephemeral

	cache := internal.NewSnapshotCache(internal.DefaultCacheDir())
	if useCache {
		if snapshot, err := cache.Load(cfg.DBPath); err != nil {
			internal.LogWarn("Snapshot cache unavailable: %v", err)
		} else if snapshot != nil {
			internal.LogDebug("Using cached snapshot of %s", cfg.DBPath)
			return snapshot, nil
		}
	}

	var snapshot *internal.Snapshot
	err = internal.ShowProgress(ctx, "Loading HEAD", func() error {
		feed, err := openFeed(ctx, internal.Options{})
		if err != nil {
			return err
		}
		snapshot, err = feed.Snapshot(ctx)
		if internal.IsUninitializable(err) {
			snapshot = &internal.Snapshot{GeneratedAt: time.Now(), Sessions: len(feed.Sessions().SessionIDs())}
			err = nil
		}
		if cerr := feed.Close(); err == nil {
			err = cerr
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	// saved after Close so the recorded mod time includes the checkpoint
	if useCache {
		if err := cache.Save(cfg.DBPath, snapshot); err != nil {
			internal.LogWarn("Unable to cache snapshot: %v", err)
		}
	}
	return snapshot, nil
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showPretty, "pretty", false, "Render the Markdown for the terminal")
	showCmd.Flags().StringVar(&showStyle, "style", "dark", "Terminal style for --pretty (dark, light, notty)")
	showCmd.Flags().IntVar(&showWrap, "wrap", 100, "Word wrap width for --pretty")
	showCmd.Flags().BoolVar(&showNoCache, "no-cache", false, "Rebuild the snapshot even when a cached one is current")
}
