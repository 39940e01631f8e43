package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kuoruan/feed-session/internal"
	"github.com/kuoruan/feed-session/internal/export"
	"github.com/spf13/cobra"
)

var (
	format     string
	outputDir  string
	clearCache bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export HEAD to a file",
	Long: `Export the current HEAD tree in the given format.

The file is written to <out>/head-<timestamp>.<ext>. Use --out - to write
to stdout.

Examples:
  feed-session export --format md
  feed-session export -f yaml -o ./snapshots
  feed-session export -f jsonl -o - | jq .content_id`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		if clearCache {
			if err := internal.NewSnapshotCache(internal.DefaultCacheDir()).Clear(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
		}

		snapshot, err := loadSnapshot(cmd.Context(), !clearCache)
		if err != nil {
			return err
		}

		if outputDir == "-" {
			return exporter.Export(snapshot, cmd.OutOrStdout())
		}

		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		name := fmt.Sprintf("head-%s.%s", snapshot.GeneratedAt.UTC().Format("20060102-150405"), exporter.Extension())
		path := filepath.Join(outputDir, name)

		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := exporter.Export(snapshot, f); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to export HEAD: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✅ Exported %d entries to %s", len(snapshot.Entries), path)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory, or - for stdout")
	exportCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "Clear the snapshot cache before running")
}
