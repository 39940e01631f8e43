package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SnapshotCacheVersion is bumped when the cached snapshot layout changes
const SnapshotCacheVersion = "1.0"

// SnapshotCache keeps the last HEAD snapshot of a database file on disk so
// read-only commands can skip rebuilding the tree.
type SnapshotCache struct {
	cacheDir string
}

// SnapshotCacheMetadata ties a cached snapshot to the database it came from
type SnapshotCacheMetadata struct {
	DatabasePath    string    `yaml:"database_path"`
	DatabaseModTime time.Time `yaml:"database_mod_time"`
	CacheVersion    string    `yaml:"cache_version"`
	CreatedAt       time.Time `yaml:"created_at"`
}

type cachedSnapshot struct {
	Metadata SnapshotCacheMetadata `yaml:"metadata"`
	Snapshot *Snapshot             `yaml:"snapshot"`
}

// NewSnapshotCache creates a cache rooted at cacheDir
func NewSnapshotCache(cacheDir string) *SnapshotCache {
	return &SnapshotCache{cacheDir: cacheDir}
}

// DefaultCacheDir resolves $FEED_SESSION_CACHE_DIR or ~/.feed-session/cache
func DefaultCacheDir() string {
	if env := os.Getenv("FEED_SESSION_CACHE_DIR"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".feed-session", "cache")
}

// Path returns the file holding the cached snapshot
func (c *SnapshotCache) Path() string {
	return filepath.Join(c.cacheDir, "head.yaml")
}

// Load returns the cached snapshot when it is still current for dbPath.
// A stale or missing cache returns nil without error.
func (c *SnapshotCache) Load(dbPath string) (*Snapshot, error) {
	data, err := os.ReadFile(c.Path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached cachedSnapshot
	if err := yaml.Unmarshal(data, &cached); err != nil {
		LogDebug("Ignoring unreadable snapshot cache: %v", err)
		return nil, nil
	}
	if cached.Metadata.CacheVersion != SnapshotCacheVersion || cached.Metadata.DatabasePath != dbPath {
		return nil, nil
	}

	dbInfo, err := os.Stat(dbPath)
	if err != nil || !cached.Metadata.DatabaseModTime.Equal(dbInfo.ModTime()) {
		return nil, nil
	}
	return cached.Snapshot, nil
}

// Save stores snap for dbPath
func (c *SnapshotCache) Save(dbPath string, snap *Snapshot) error {
	dbInfo, err := os.Stat(dbPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(&cachedSnapshot{
		Metadata: SnapshotCacheMetadata{
			DatabasePath:    dbPath,
			DatabaseModTime: dbInfo.ModTime(),
			CacheVersion:    SnapshotCacheVersion,
			CreatedAt:       time.Now(),
		},
		Snapshot: snap,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot cache: %w", err)
	}
	return os.WriteFile(c.Path(), data, 0o644)
}

// Clear removes the cached snapshot
func (c *SnapshotCache) Clear() error {
	if err := os.Remove(c.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
