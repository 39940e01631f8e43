package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List derived sessions",
	Long: `List every persisted session with its last access time and size.

Sessions past their lifetime are dropped while the feed is opened.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		stats := feed.Sessions().Stats()
		derived := make(map[string]internal.SessionStats, len(stats.Derived))
		for _, s := range stats.Derived {
			derived[s.ID] = s
		}

		records := feed.Sessions().Records()
		sort.Slice(records, func(i, j int) bool {
			return records[i].LastAccessed.After(records[j].LastAccessed)
		})

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Sessions (%s)", countStyle.Render(fmt.Sprint(len(records)-1)))))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TOKEN\tLAST ACCESSED\tSIZE\tKIND\tBOUND")
		for _, rec := range records {
			kind, size, bound := "head", feed.Sessions().Head().Stats().Size, "-"
			if rec.Token != internal.HeadSessionID {
				s := derived[rec.Token]
				kind, size, bound = "derived", s.Size, fmt.Sprint(s.Bound)
				if s.Timeout {
					kind = "timeout"
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				idStyle.Render(rec.Token),
				dateStyle.Render(formatAccessed(rec.LastAccessed)),
				size, kind, bound)
		}
		return w.Flush()
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <token>",
	Short: "Remove a session and its journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		if token == internal.HeadSessionID {
			return fmt.Errorf("HEAD cannot be removed; use reset-head")
		}

		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		if _, ok := feed.Sessions().Get(token); !ok {
			return fmt.Errorf("session %s not found", token)
		}
		if err := feed.RemoveSession(cmd.Context(), token); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✅ Removed session "+token))
		return nil
	},
}

var sessionsTouchCmd = &cobra.Command{
	Use:   "touch <token>",
	Short: "Refresh the last access time of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		if _, ok := feed.Sessions().Get(args[0]); !ok {
			return fmt.Errorf("session %s not found", args[0])
		}
		return feed.TouchSession(cmd.Context(), args[0])
	},
}

func formatAccessed(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsCmd.AddCommand(sessionsTouchCmd)
}
