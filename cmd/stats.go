package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show diagnostics for every engine component",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		feed, err := openFeed(cmd.Context(), internal.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = feed.Close() }()

		stats, err := feed.Stats(cmd.Context())
		if err != nil {
			internal.LogWarn("Table counts unavailable: %v", err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		printStats(out, stats)
		return nil
	},
}

func printStats(out io.Writer, st *internal.Stats) {
	section := func(title string) {
		fmt.Fprintln(out)
		fmt.Fprintln(out, sectionStyle.Render(title))
	}
	line := func(label string, value interface{}) {
		fmt.Fprintf(out, "  %-20s %v\n", label+":", value)
	}

	fmt.Fprintln(out, sectionStyle.Render("📊 Feed Statistics"))
	if st.DBPath != "" {
		line("Database", st.DBPath)
		line("Size (bytes)", st.DBSizeBytes)
	}

	section("Store")
	line("Content rows", st.Tables.Content)
	line("Semantic rows", st.Tables.SemanticProperties)
	line("Journal entries", st.Tables.JournalEntries)
	line("Journals", st.Tables.Journals)
	line("Ephemeral", st.Store.Ephemeral)
	line("GC runs", st.Store.GCRuns)
	line("GC deleted", st.Store.GCDeleted)

	section("HEAD")
	line("Size", st.Head.Size)
	line("Updates", st.Head.Updates)
	line("Skipped", st.Head.Skipped)
	line("Commit failures", st.Head.CommitFailures)

	section("Sessions")
	line("Registered", st.Sessions.Sessions)
	line("Restored", st.Sessions.Restored)
	line("Expired", st.Sessions.Expired)
	line("Orphans removed", st.Sessions.OrphansRemoved)

	section("Task queue")
	priorities := make([]string, 0, len(st.Queue.Executed))
	for p := range st.Queue.Executed {
		priorities = append(priorities, p)
	}
	sort.Strings(priorities)
	for _, p := range priorities {
		line(p, st.Queue.Executed[p])
	}
	line("Panics", st.Queue.Panics)
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the statistics as JSON")
}
