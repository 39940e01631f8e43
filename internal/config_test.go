package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultDBPath(t *testing.T) {
	t.Setenv("FEED_SESSION_DB", "/tmp/override.db")
	if got := DefaultDBPath(); got != "/tmp/override.db" {
		t.Errorf("DefaultDBPath() got = %v, want /tmp/override.db", got)
	}
}

func TestLoadConfig(t *testing.T) {
	write := func(t *testing.T, content string) string {
		path := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		return path
	}

	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg Config)
		wantErr bool
	}{
		{
			name:    "overrides defaults",
			content: "db_path: /data/feed.db\nsession_lifetime: 2h\nlimit_paging_updates: false\n",
			check: func(t *testing.T, cfg Config) {
				if cfg.DBPath != "/data/feed.db" || cfg.SessionLifetime != 2*time.Hour || cfg.LimitPagingUpdates {
					t.Errorf("LoadConfig() got = %+v", cfg)
				}
				if cfg.ResetTimeout != DefaultResetTimeout {
					t.Errorf("ResetTimeout got = %v, want %v", cfg.ResetTimeout, DefaultResetTimeout)
				}
			},
		},
		{
			name:    "ephemeral without path",
			content: "db_path: \"\"\nephemeral: true\n",
			check: func(t *testing.T, cfg Config) {
				if !cfg.Ephemeral {
					t.Error("Ephemeral got = false, want true")
				}
			},
		},
		{name: "negative lifetime", content: "session_lifetime: -1h\n", wantErr: true},
		{name: "missing path", content: "db_path: \"\"\n", wantErr: true},
		{name: "malformed", content: "session_lifetime: [\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(write(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadConfig_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SessionLifetime != DefaultSessionLifetime || !cfg.LimitPagingUpdates {
		t.Errorf("LoadConfig(\"\") got = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadConfig() error = nil, want read error")
	}
}
