package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuoruan/feed-session/testutil"
)

// runCommand executes rootCmd with args and returns what it wrote to stdout
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), err
}

// resetFlags restores flag variables, which cobra keeps between executions
func resetFlags() {
	verbose, dbPath, configPath, ephemeral = false, "", "", false
	commitSession, commitContinuation, commitUserInitiated = "", "", false
	showPretty, showStyle, showWrap, showNoCache = false, "dark", 100, false
	format, outputDir, clearCache = "jsonl", "./exports", false
	createLegacy = false
	statsJSON = false
	healthcheckVerbose = false
	inspectFormat, inspectSampleRows = "text", 3
}

// feedEnv points the CLI at a fresh temp directory and returns the db path
func feedEnv(t *testing.T) (dir, db string) {
	t.Helper()
	dir = testutil.CreateTempDir(t)
	t.Setenv("FEED_SESSION_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("FEED_SESSION_CONFIG", "")
	t.Setenv("FEED_SESSION_DB", "")
	return dir, filepath.Join(dir, "feed.db")
}

// commitSample commits testutil.SampleBatch to db
func commitSample(t *testing.T, dir, db string) {
	t.Helper()
	batch := testutil.WriteFile(t, dir, "batch.yaml", []byte(testutil.SampleBatch))
	if _, err := runCommand(t, "commit", batch, "--db", db); err != nil {
		t.Fatalf("commit error = %v", err)
	}
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "version flag", args: []string{"--version"}, want: "dev"},
		{name: "help flag", args: []string{"--help"}, want: "feed-session"},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runCommand(t, tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("rootCmd.Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("rootCmd.Execute() output = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir, db := feedEnv(t)
	config := testutil.WriteFile(t, dir, "config.yaml", []byte("db_path: /elsewhere/feed.db\nsession_lifetime: 1h\n"))

	resetFlags()
	configPath, dbPath = config, db
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DBPath != db {
		t.Errorf("loadConfig() DBPath = %v, want %v", cfg.DBPath, db)
	}
	if cfg.SessionLifetime.String() != "1h0m0s" {
		t.Errorf("loadConfig() SessionLifetime = %v, want 1h0m0s", cfg.SessionLifetime)
	}

	resetFlags()
	t.Setenv("FEED_SESSION_CONFIG", config)
	ephemeral = true
	cfg, err = loadConfig()
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DBPath != "/elsewhere/feed.db" || !cfg.Ephemeral {
		t.Errorf("loadConfig() got = %+v, want config file path and ephemeral", cfg)
	}
	resetFlags()
}
