package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the feed store can be opened and read",
	Long: `Check the health of the feed store by verifying:
  • Configuration and database path
  • Database accessibility
  • HEAD can be rebuilt from its journal
  • The session index decodes

This command is useful for debugging storage issues, especially in CI/CD environments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Feed Session Health Check"))
		fmt.Fprintln(out)

		// Step 1: Resolve configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Resolving configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Invalid configuration:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   Database: %s\n", cfg.DBPath)
			fmt.Fprintf(out, "   Session lifetime: %s\n", cfg.SessionLifetime)
			fmt.Fprintf(out, "   Reset timeout: %s\n", cfg.ResetTimeout)
		}
		fmt.Fprintln(out)

		// Step 2: Open the database
		fmt.Fprintln(out, infoStyle.Render("Step 2: Opening database..."))
		var backend *internal.SQLiteStore
		if cfg.Ephemeral {
			backend, err = internal.OpenEphemeralSQLiteStore()
		} else {
			if _, statErr := os.Stat(cfg.DBPath); os.IsNotExist(statErr) {
				fmt.Fprintln(out, warningStyle.Render("⚠️  Database does not exist yet"))
				if healthcheckVerbose {
					fmt.Fprintf(out, "   Expected: %s\n", cfg.DBPath)
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, infoStyle.Render("Run 'feed-session commit <batch-file>' to create it."))
				return nil
			}
			backend, err = internal.OpenSQLiteStore(cfg.DBPath)
		}
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to open database:"), err)
			return err
		}
		store := internal.NewFeedStore(backend, internal.NewContentCache())
		defer func() { _ = store.Close() }()

		counts, err := store.Counts(ctx)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Database is not readable:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render("✅ Database accessible"))
		if healthcheckVerbose {
			fmt.Fprintf(out, "   Content rows: %d\n", counts.Content)
			fmt.Fprintf(out, "   Journal entries: %d in %d journal(s)\n", counts.JournalEntries, counts.Journals)
		}
		fmt.Fprintln(out)

		// Step 3: Rebuild HEAD
		fmt.Fprintln(out, infoStyle.Render("Step 3: Rebuilding HEAD..."))
		head := internal.NewHeadAsStructure(store)
		switch err := head.Initialize(ctx); {
		case internal.IsUninitializable(err):
			fmt.Fprintln(out, warningStyle.Render("⚠️  HEAD is empty"))
		case err != nil:
			fmt.Fprintln(out, errorStyle.Render("❌ HEAD journal is corrupt:"), err)
			return err
		default:
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ HEAD has %d node(s)", head.Size())))
			if unbound := head.Unbound(); unbound > 0 {
				fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  %d node(s) have no stored payload", unbound)))
			}
		}
		fmt.Fprintln(out)

		// Step 4: Decode the session index
		fmt.Fprintln(out, infoStyle.Render("Step 4: Reading session index..."))
		index, err := internal.LoadSessionIndex(ctx, store)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Session index unreadable:"), err)
			return err
		}
		now := time.Now()
		alive := 0
		for _, rec := range index.Sessions {
			if rec.Token != internal.HeadSessionID && internal.IsSessionAlive(rec, now, cfg.SessionLifetime) {
				alive++
			}
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %d live session(s)", alive)))
		if healthcheckVerbose && !index.Metadata.UpdatedAt.IsZero() {
			fmt.Fprintf(out, "   Index updated: %s\n", index.Metadata.UpdatedAt.Local().Format(time.RFC3339))
		}
		fmt.Fprintln(out)

		fmt.Fprintln(out, successStyle.Render("✅ Health check passed"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed information")
}
