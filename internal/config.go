package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSessionLifetime is how long an untouched derived session survives
	DefaultSessionLifetime = 30 * 24 * time.Hour

	// DefaultResetTimeout bounds how long a HEAD invalidation holds queued work
	DefaultResetTimeout = 30 * time.Second
)

// Config holds the tunables of the feed engine
type Config struct {
	DBPath             string        `yaml:"db_path"`
	SessionLifetime    time.Duration `yaml:"session_lifetime"`
	LimitPagingUpdates bool          `yaml:"limit_paging_updates"`
	ResetTimeout       time.Duration `yaml:"reset_timeout"`
	Ephemeral          bool          `yaml:"ephemeral"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		DBPath:             DefaultDBPath(),
		SessionLifetime:    DefaultSessionLifetime,
		LimitPagingUpdates: true,
		ResetTimeout:       DefaultResetTimeout,
	}
}

// DefaultDBPath resolves $FEED_SESSION_DB or ~/.feed-session/feed.db
func DefaultDBPath() string {
	if env := os.Getenv("FEED_SESSION_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".feed-session", "feed.db")
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects unusable settings
func (c Config) Validate() error {
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("session_lifetime must be positive, got %s", c.SessionLifetime)
	}
	if c.ResetTimeout < 0 {
		return fmt.Errorf("reset_timeout must not be negative, got %s", c.ResetTimeout)
	}
	if !c.Ephemeral && c.DBPath == "" {
		return fmt.Errorf("db_path is required unless ephemeral is set")
	}
	return nil
}
