package cmd

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kuoruan/feed-session/internal"
	"github.com/spf13/cobra"
)

var (
	inspectFormat     string
	inspectSampleRows int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [database-path]",
	Short: "Inspect the feed database schema and rows",
	Long: `Inspect the tables of a feed database.

This command provides:
  • Schema of the content, semantic_properties and journal tables
  • Row counts
  • Sample rows, with stored payloads decoded

Examples:
  feed-session inspect                        # Inspect the configured database
  feed-session inspect /path/to/feed.db       # Inspect a specific database
  feed-session inspect --format json --sample 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Ephemeral {
				return fmt.Errorf("an ephemeral store has nothing to inspect")
			}
			path = cfg.DBPath
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("database %s: %w", path, err)
		}

		report, err := inspectDatabase(path, inspectSampleRows)
		if err != nil {
			return err
		}

		switch inspectFormat {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		case "text":
			printInspectReport(cmd.OutOrStdout(), report)
			return nil
		default:
			return fmt.Errorf("unsupported format: %s (supported: text, json)", inspectFormat)
		}
	},
}

// ColumnInfo describes one column of a table
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	NotNull    bool   `json:"not_null"`
	PrimaryKey bool   `json:"primary_key"`
}

// TableReport is the inspection result of one table
type TableReport struct {
	Name    string              `json:"name"`
	Rows    int                 `json:"rows"`
	Columns []ColumnInfo        `json:"columns"`
	Sample  []map[string]string `json:"sample,omitempty"`
}

// DatabaseReport is the inspection result of a database
type DatabaseReport struct {
	Path   string        `json:"path"`
	Tables []TableReport `json:"tables"`
}

func inspectDatabase(path string, sampleRows int) (*DatabaseReport, error) {
	db, err := internal.OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	tables, err := getTables(db)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	report := &DatabaseReport{Path: path}
	for _, name := range tables {
		table, err := inspectTable(db, name, sampleRows)
		if err != nil {
			internal.LogWarn("Error inspecting table %s: %v", name, err)
			continue
		}
		report.Tables = append(report.Tables, *table)
	}
	return report, nil
}

func getTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func inspectTable(db *sql.DB, name string, sampleRows int) (*TableReport, error) {
	table := &TableReport{Name: name}
	// table names come from sqlite_master
	if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&table.Rows); err != nil {
		return nil, fmt.Errorf("failed to get row count: %w", err)
	}

	columns, err := getTableSchema(db, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	table.Columns = columns

	if table.Rows > 0 && sampleRows > 0 {
		table.Sample, err = sampleData(db, name, columns, sampleRows)
		if err != nil {
			return nil, fmt.Errorf("failed to read sample rows: %w", err)
		}
	}
	return table, nil
}

func getTableSchema(db *sql.DB, name string) ([]ColumnInfo, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var columns []ColumnInfo
	for rows.Next() {
		var (
			col          ColumnInfo
			cid          int
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &col.Name, &col.Type, &notNull, &defaultValue, &pk); err != nil {
			return nil, err
		}
		col.NotNull = notNull == 1
		col.PrimaryKey = pk > 0
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func sampleData(db *sql.DB, name string, columns []ColumnInfo, limit int) ([]map[string]string, error) {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = fmt.Sprintf("%q", col.Name)
	}

	rows, err := db.Query(fmt.Sprintf("SELECT %s FROM %q LIMIT %d", strings.Join(names, ", "), name, limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sample []map[string]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			row[col.Name] = formatValue(col.Name, values[i])
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}

// formatValue renders a scanned column. Stored payloads are JSON and are
// compacted onto one line.
func formatValue(column string, v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "<NULL>"
	case []byte:
		s = string(val)
	default:
		s = fmt.Sprint(val)
	}

	if column == "payload" {
		var decoded internal.Payload
		if json.Unmarshal([]byte(s), &decoded) == nil {
			if compact, err := json.Marshal(decoded); err == nil {
				s = string(compact)
			}
		}
	}

	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "..."
	}
	return s
}

func printInspectReport(out io.Writer, report *DatabaseReport) {
	fmt.Fprintf(out, "📋 Database: %s\n", report.Path)
	fmt.Fprintf(out, "📊 Found %d table(s)\n\n", len(report.Tables))

	for _, table := range report.Tables {
		fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Fprintf(out, "📦 Table: %s\n", table.Name)
		fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Fprintf(out, "📊 Rows: %d\n\n", table.Rows)

		fmt.Fprintln(out, "📐 Schema:")
		for _, col := range table.Columns {
			var flags string
			if col.NotNull {
				flags += " NOT NULL"
			}
			if col.PrimaryKey {
				flags += " [PRIMARY KEY]"
			}
			fmt.Fprintf(out, "  • %s: %s%s\n", col.Name, col.Type, flags)
		}

		if len(table.Sample) > 0 {
			fmt.Fprintf(out, "\n📄 Sample Data (first %d rows):\n", len(table.Sample))
			for i, row := range table.Sample {
				fmt.Fprintf(out, "\n  Row %d:\n", i+1)
				for _, col := range table.Columns {
					fmt.Fprintf(out, "    %s: %s\n", col.Name, row[col.Name])
				}
			}
		}
		fmt.Fprintln(out)
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format (text, json)")
	inspectCmd.Flags().IntVar(&inspectSampleRows, "sample", 3, "Number of sample rows to show")
}
