package cmd

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuoruan/feed-session/testutil"
)

func TestInspectCommand(t *testing.T) {
	dir, _ := feedEnv(t)
	db := testutil.CreateFeedFixture(t, dir)

	got, err := runCommand(t, "inspect", db, "--sample", "1")
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	for _, want := range []string{"Found 3 table(s)", "Table: content", "Rows: 4", "content_id: TEXT [PRIMARY KEY]", `"title":"Top stories"`} {
		if !strings.Contains(got, want) {
			t.Errorf("inspect output = %q, want it to contain %q", got, want)
		}
	}

	got, err = runCommand(t, "inspect", "--db", db, "--format", "json", "--sample", "0")
	if err != nil {
		t.Fatalf("inspect error = %v", err)
	}
	var report DatabaseReport
	testutil.JSONUnmarshal(t, []byte(got), &report)
	names := make([]string, 0, len(report.Tables))
	for _, table := range report.Tables {
		names = append(names, table.Name)
		if len(table.Sample) != 0 {
			t.Errorf("table %s sample = %v, want none", table.Name, table.Sample)
		}
	}
	if strings.Join(names, ",") != "content,journal,semantic_properties" {
		t.Errorf("inspect tables = %v", names)
	}
}

func TestInspectCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(dir, db string) []string
	}{
		{
			name: "missing database",
			args: func(dir, db string) []string { return []string{"inspect", filepath.Join(dir, "absent.db")} },
		},
		{
			name: "unsupported format",
			args: func(dir, db string) []string { return []string{"inspect", db, "--format", "xml"} },
		},
		{
			name: "ephemeral store",
			args: func(dir, db string) []string { return []string{"inspect", "--ephemeral"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, _ := feedEnv(t)
			db := testutil.CreateFeedFixture(t, dir)
			args := tt.args(dir, db)
			if _, err := runCommand(t, args...); err == nil {
				t.Errorf("inspect %v error = nil, want error", args)
			}
		})
	}
}
