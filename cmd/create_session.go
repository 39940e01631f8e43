package cmd

import (
	"fmt"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var createLegacy bool

var createSessionCmd = &cobra.Command{
	Use:   "create-session",
	Short: "Create a session seeded from HEAD",
	Long: `Create a derived session holding the current HEAD content and print
its token.

With --legacy the session is a timeout session: it keeps its content
across the next HEAD reset instead of being dropped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		session, err := feed.CreateSession(cmd.Context(), nil, nil, createLegacy)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, session.SessionID())
		if verbose {
			stats := session.Stats()
			fmt.Fprintf(out, "   size: %d, timeout: %v\n", stats.Size, stats.Timeout)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createSessionCmd)
	createSessionCmd.Flags().BoolVar(&createLegacy, "legacy", false, "Create a timeout session that survives one HEAD reset")
}
