package cmd

import (
	"fmt"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete content no session can reach",
	Long: `Collect garbage in the feed store.

Removes journals of sessions that are no longer registered, then deletes
content and semantic properties not reachable from any session. Shared
state and the session index are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		err = internal.ShowProgress(cmd.Context(), "Collecting garbage", func() error {
			feed.RunContentGC()
			feed.Flush()
			return nil
		})
		if err != nil {
			return err
		}

		// opening the feed already ran one collection
		stats := feed.Store().Stats()
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(
			fmt.Sprintf("✅ Deleted %d unreachable row(s) in %d run(s)", stats.GCDeleted, stats.GCRuns)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}
