package cmd

import (
	"fmt"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var resetHeadCmd = &cobra.Command{
	Use:   "reset-head",
	Short: "Clear HEAD",
	Long: `Clear HEAD ahead of any queued work.

Sessions created from the cleared content keep their journals until the
next gc; timeout sessions keep serving their content.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		if err := feed.ForceResetHead(cmd.Context()); err != nil {
			return err
		}
		stats, err := feed.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if stats.HeadReset.Failures > 0 {
			return fmt.Errorf("store refused to clear HEAD")
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ HEAD cleared"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetHeadCmd)
}
