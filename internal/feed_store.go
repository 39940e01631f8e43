package internal

import (
	"context"
	"sync"
	"sync/atomic"
)

// FeedStore is the Store used by the engine. It routes calls to the
// persistent SQLite database until SwitchToEphemeralMode moves it onto an
// in-memory copy, and serves in-flight payloads from the ContentCache.
type FeedStore struct {
	mu         sync.RWMutex
	active     *SQLiteStore
	persistent *SQLiteStore
	ephemeral  bool

	contentCache *ContentCache
	log          componentLog

	ephemeralSwitches atomic.Int64
	gcRuns            atomic.Int64
	gcDeleted         atomic.Int64
}

// NewFeedStore creates a store over backend. contentCache may be nil.
func NewFeedStore(backend *SQLiteStore, contentCache *ContentCache) *FeedStore {
	return &FeedStore{
		active:       backend,
		persistent:   backend,
		contentCache: contentCache,
		log:          newComponentLog("FeedStore"),
	}
}

func (s *FeedStore) backend() *SQLiteStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Close closes every backend the store has opened
func (s *FeedStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.persistent.Close()
	if s.active != s.persistent {
		if cerr := s.active.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *FeedStore) GetStreamStructures(ctx context.Context, sessionID string) ([]Operation, error) {
	return s.backend().GetStreamStructures(ctx, sessionID)
}

// GetPayloads answers from the content cache first, then the backend
func (s *FeedStore) GetPayloads(ctx context.Context, contentIDs []string) ([]PayloadWithID, error) {
	if s.contentCache == nil {
		return s.backend().GetPayloads(ctx, contentIDs)
	}

	cached := make(map[string]Payload)
	var missing []string
	for _, id := range contentIDs {
		if p, ok := s.contentCache.Get(id); ok {
			cached[id] = p
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		result := make([]PayloadWithID, 0, len(contentIDs))
		for _, id := range contentIDs {
			result = append(result, PayloadWithID{ContentID: id, Payload: cached[id]})
		}
		return result, nil
	}

	stored, err := s.backend().GetPayloads(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range stored {
		cached[p.ContentID] = p.Payload
	}
	result := make([]PayloadWithID, 0, len(cached))
	for _, id := range contentIDs {
		if p, ok := cached[id]; ok {
			result = append(result, PayloadWithID{ContentID: id, Payload: p})
		}
	}
	return result, nil
}

func (s *FeedStore) GetSemanticProperties(ctx context.Context, contentIDs []string) (map[string][]byte, error) {
	return s.backend().GetSemanticProperties(ctx, contentIDs)
}

func (s *FeedStore) EditSession(sessionID string) SessionEditor {
	return s.backend().EditSession(sessionID)
}

func (s *FeedStore) EditContent() ContentEditor {
	return s.backend().EditContent()
}

func (s *FeedStore) EditSemanticProperties() SemanticPropertiesEditor {
	return s.backend().EditSemanticProperties()
}

func (s *FeedStore) GetAllSessions(ctx context.Context) ([]string, error) {
	return s.backend().GetAllSessions(ctx)
}

func (s *FeedStore) RemoveSession(ctx context.Context, sessionID string) error {
	return s.backend().RemoveSession(ctx, sessionID)
}

func (s *FeedStore) ClearHead(ctx context.Context) error {
	return s.backend().ClearHead(ctx)
}

// SwitchToEphemeralMode copies the persistent data into an in-memory
// database and routes every later call there. The copy is best effort.
func (s *FeedStore) SwitchToEphemeralMode(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ephemeral {
		return
	}

	mem, err := OpenEphemeralSQLiteStore()
	if err != nil {
		s.log.errorf("Unable to open ephemeral store, staying persistent: %v", err)
		return
	}
	if err := s.active.CopyTo(ctx, mem); err != nil {
		s.log.warnf("Ephemeral copy incomplete: %v", err)
	}
	s.active = mem
	s.ephemeral = true
	s.ephemeralSwitches.Add(1)
	s.log.warnf("Switched to ephemeral mode")
}

func (s *FeedStore) IsEphemeralMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ephemeral
}

// TriggerContentGC returns the GC task. reachable is evaluated when the
// task runs, not when it is created.
func (s *FeedStore) TriggerContentGC(reserved []string, reachable ReachableFunc) Task {
	return func(ctx context.Context) {
		keep := make(map[string]struct{}, len(reserved))
		for _, id := range reserved {
			keep[id] = struct{}{}
		}
		if reachable != nil {
			for id := range reachable() {
				keep[id] = struct{}{}
			}
		}

		deleted, err := s.backend().CollectGarbage(ctx, keep)
		s.gcRuns.Add(1)
		if err != nil {
			s.log.errorf("Content GC failed: %v", err)
			return
		}
		s.gcDeleted.Add(int64(deleted))
		s.log.debugf("Content GC removed %d entries, kept %d", deleted, len(keep))
	}
}

// StoreStats is a diagnostics snapshot of the store
type StoreStats struct {
	Ephemeral         bool  `json:"ephemeral"`
	EphemeralSwitches int64 `json:"ephemeral_switches"`
	GCRuns            int64 `json:"gc_runs"`
	GCDeleted         int64 `json:"gc_deleted"`
}

// Stats returns the store counters
func (s *FeedStore) Stats() StoreStats {
	return StoreStats{
		Ephemeral:         s.IsEphemeralMode(),
		EphemeralSwitches: s.ephemeralSwitches.Load(),
		GCRuns:            s.gcRuns.Load(),
		GCDeleted:         s.gcDeleted.Load(),
	}
}

// Counts returns row counts of the active backend
func (s *FeedStore) Counts(ctx context.Context) (TableCounts, error) {
	return s.backend().Counts(ctx)
}
