package internal

import (
	"context"
	"os"
	"time"
)

// Stats holds diagnostics for every component of a Feed.
type Stats struct {
	DBPath       string            `json:"db_path,omitempty"`
	DBSizeBytes  int64             `json:"db_size_bytes,omitempty"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Tables       TableCounts       `json:"tables"`
	Store        StoreStats        `json:"store"`
	ContentCache ContentCacheStats `json:"content_cache"`
	Head         HeadSessionStats  `json:"head"`
	Sessions     SessionCacheStats `json:"sessions"`
	Committer    CommitterStats    `json:"committer"`
	HeadReset    HeadResetStats    `json:"head_reset"`
	Queue        TaskQueueStats    `json:"queue"`
}

// Stats collects counters from every component. Table counts are best effort.
func (f *Feed) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		GeneratedAt:  f.now(),
		Store:        f.store.Stats(),
		ContentCache: f.contentCache.Stats(),
		Head:         f.sessions.Head().Stats(),
		Sessions:     f.sessions.Stats(),
		Committer:    f.committers.Stats(),
		HeadReset:    f.resetter.Stats(),
		Queue:        f.queue.Stats(),
	}

	if !f.cfg.Ephemeral && f.cfg.DBPath != "" {
		st.DBPath = f.cfg.DBPath
		if info, err := os.Stat(f.cfg.DBPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}

	tables, err := f.store.Counts(ctx)
	st.Tables = tables
	return st, err
}
