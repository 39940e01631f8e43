package internal

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/exp/maps"
)

// SessionCacheOptions configures a SessionCache
type SessionCacheOptions struct {
	Lifetime           time.Duration
	LimitPagingUpdates bool
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// SessionCache owns every session: the HEAD session plus derived views.
// mu guards the map only. Sessions fetched from it are mutated after the
// lock is released, on the TaskQueue worker.
type SessionCache struct {
	store       Store
	queue       *TaskQueue
	lifetime    time.Duration
	limitPaging bool
	now         func() time.Time
	log         componentLog

	mu       sync.Mutex
	sessions map[string]Session
	head     *HeadSession
	entropy  *ulid.MonotonicEntropy

	initialized atomic.Bool

	created         atomic.Int64
	restored        atomic.Int64
	expired         atomic.Int64
	removed         atomic.Int64
	persistFailures atomic.Int64
	orphansRemoved  atomic.Int64
	gcScheduled     atomic.Int64
}

// NewSessionCache creates a cache holding only the HEAD session
func NewSessionCache(store Store, queue *TaskQueue, opts SessionCacheOptions) *SessionCache {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultSessionLifetime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SessionCache{
		store:       store,
		queue:       queue,
		lifetime:    opts.Lifetime,
		limitPaging: opts.LimitPagingUpdates,
		now:         opts.Now,
		log:         newComponentLog("SessionCache"),
		sessions:    make(map[string]Session),
		head:        NewHeadSession(store),
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(opts.Now().UnixNano())), 0),
	}
}

// IsSessionAlive reports whether a persisted record should be kept
func IsSessionAlive(rec SessionRecord, now time.Time, lifetime time.Duration) bool {
	return rec.Token == HeadSessionID || rec.LastAccessed.Add(lifetime).After(now)
}

// Initialize loads HEAD and schedules the restore of persisted sessions
func (c *SessionCache) Initialize(ctx context.Context) bool {
	assertWorker(ctx, "SessionCache.Initialize")

	c.mu.Lock()
	c.sessions[HeadSessionID] = c.head
	c.mu.Unlock()

	ops, err := c.store.GetStreamStructures(ctx, HeadSessionID)
	if err != nil {
		c.log.errorf("Unable to load HEAD: %v", err)
		return false
	}
	c.head.replayJournal(ops)
	c.initialized.Store(true)
	c.log.debugf("HEAD initialized with %d operations", len(ops))

	c.queue.Execute("restorePersistedSessions", PriorityBackground, c.restorePersistedSessions)
	return true
}

// IsHeadInitialized reports whether Initialize completed
func (c *SessionCache) IsHeadInitialized() bool {
	return c.initialized.Load()
}

// Head returns the HEAD session
func (c *SessionCache) Head() *HeadSession {
	return c.head
}

func (c *SessionCache) restorePersistedSessions(ctx context.Context) {
	index, err := LoadSessionIndex(ctx, c.store)
	if err != nil {
		c.log.errorf("Unable to read persisted sessions: %v", err)
		c.scheduleGarbageCollection()
		return
	}

	now := c.now()
	var expired []string
	for _, rec := range index.Sessions {
		if rec.Token == HeadSessionID {
			c.head.SetLastAccessed(rec.LastAccessed)
			continue
		}
		if !IsSessionAlive(rec, now, c.lifetime) {
			expired = append(expired, rec.Token)
			c.mu.Lock()
			delete(c.sessions, rec.Token)
			c.mu.Unlock()
			continue
		}
		if _, ok := c.Get(rec.Token); ok {
			continue
		}

		session := NewDerivedSession(rec.Token, c.store, c.queue, DerivedSessionOptions{
			LimitPagingUpdates: c.limitPaging,
			LastAccessed:       rec.LastAccessed,
		})
		c.mu.Lock()
		c.sessions[rec.Token] = session
		c.mu.Unlock()
		c.restored.Add(1)

		token := rec.Token
		c.queue.Execute("restoreSession "+token, PriorityBackground, func(ctx context.Context) {
			ops, err := c.store.GetStreamStructures(ctx, token)
			if err != nil {
				c.log.errorf("Unable to read journal of %s: %v", token, err)
				return
			}
			session.restore(ctx, ops)
		})
	}

	if len(expired) > 0 {
		c.queue.Execute("removeExpiredSessions", PriorityBackground, func(ctx context.Context) {
			for _, token := range expired {
				if err := c.store.RemoveSession(ctx, token); err != nil {
					c.log.warnf("Unable to remove expired session %s: %v", token, err)
					continue
				}
				c.expired.Add(1)
			}
			c.persist(ctx)
		})
	}
	c.scheduleGarbageCollection()
}

func (c *SessionCache) scheduleGarbageCollection() {
	c.gcScheduled.Add(1)
	c.queue.Execute("contentGC", PriorityBackground,
		c.store.TriggerContentGC([]string{SessionIndexContentID}, c.ReachableContent))
	c.queue.Execute("cleanupSessionJournals", PriorityBackground, c.cleanupSessionJournals)
}

// RunGarbageCollection schedules content GC and journal cleanup now
func (c *SessionCache) RunGarbageCollection() {
	c.scheduleGarbageCollection()
}

// ReachableContent is the union of every session's membership
func (c *SessionCache) ReachableContent() map[string]struct{} {
	reachable := make(map[string]struct{})
	for _, s := range c.Sessions() {
		maps.Copy(reachable, s.ContentInSession())
	}
	return reachable
}

func (c *SessionCache) cleanupSessionJournals(ctx context.Context) {
	stored, err := c.store.GetAllSessions(ctx)
	if err != nil {
		c.log.warnf("Unable to list session journals: %v", err)
		return
	}
	for _, id := range stored {
		if _, ok := c.Get(id); ok {
			continue
		}
		if err := c.store.RemoveSession(ctx, id); err != nil {
			c.log.warnf("Unable to remove orphaned journal %s: %v", id, err)
			continue
		}
		c.orphansRemoved.Add(1)
	}
}

// Get returns the session registered for token
func (c *SessionCache) Get(token string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[token]
	return s, ok
}

// Put registers a session and persists the session index
func (c *SessionCache) Put(ctx context.Context, token string, session Session) {
	assertWorker(ctx, "SessionCache.Put")
	c.mu.Lock()
	c.sessions[token] = session
	c.mu.Unlock()
	c.persist(ctx)
}

// Remove drops a session and its journal, then persists the session index.
// HEAD cannot be removed.
func (c *SessionCache) Remove(ctx context.Context, token string) {
	assertWorker(ctx, "SessionCache.Remove")
	if token == HeadSessionID {
		c.log.warnf("Refusing to remove HEAD")
		return
	}
	c.mu.Lock()
	_, ok := c.sessions[token]
	delete(c.sessions, token)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.removed.Add(1)
	if err := c.store.RemoveSession(ctx, token); err != nil {
		c.log.warnf("Unable to remove journal of %s: %v", token, err)
	}
	c.persist(ctx)
}

// Sessions returns every registered session, HEAD included
func (c *SessionCache) Sessions() []Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Values(c.sessions)
}

// SessionIDs returns the sorted tokens of every registered session
func (c *SessionCache) SessionIDs() []string {
	c.mu.Lock()
	ids := maps.Keys(c.sessions)
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Records returns the persisted view of every session
func (c *SessionCache) Records() []SessionRecord {
	sessions := c.Sessions()
	records := make([]SessionRecord, 0, len(sessions))
	for _, s := range sessions {
		records = append(records, s.Record())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Token < records[j].Token })
	return records
}

// DetachModelProvider unbinds the consumer of a session without removing it
func (c *SessionCache) DetachModelProvider(token string) {
	s, ok := c.Get(token)
	if !ok {
		c.log.warnf("Detach of unknown session %s", token)
		return
	}
	if _, isHead := s.(*HeadSession); isHead {
		c.log.warnf("Detach of HEAD ignored")
		return
	}
	s.UnbindModelProvider()
}

// UpdateAccessTime marks a session as used now and persists the index
func (c *SessionCache) UpdateAccessTime(ctx context.Context, token string) {
	s, ok := c.Get(token)
	if !ok {
		c.log.warnf("Access time update for unknown session %s", token)
		return
	}
	s.SetLastAccessed(c.now())
	c.persist(ctx)
}

// Reset invalidates every bound consumer and leaves only an empty HEAD
func (c *SessionCache) Reset() {
	for _, s := range c.Sessions() {
		if provider := s.ModelProvider(); provider != nil {
			provider.Invalidate()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.sessions)
	c.head.reset()
	c.sessions[HeadSessionID] = c.head
}

// CreateSession creates a derived session seeded from HEAD and bound to
// provider. With legacyHeadContent the session bridges one HEAD reset.
func (c *SessionCache) CreateSession(ctx context.Context, provider ModelProvider, viewDepth ViewDepthProvider, legacyHeadContent bool) (*DerivedSession, error) {
	assertWorker(ctx, "SessionCache.CreateSession")
	if !c.IsHeadInitialized() {
		return nil, ErrNotInitialized
	}

	now := c.now()
	c.mu.Lock()
	token := ulid.MustNew(ulid.Timestamp(now), c.entropy).String()
	c.mu.Unlock()

	session := NewDerivedSession(token, c.store, c.queue, DerivedSessionOptions{
		LimitPagingUpdates: c.limitPaging,
		LegacyHeadContent:  legacyHeadContent,
		LastAccessed:       now,
	})
	if provider != nil {
		session.BindModelProvider(provider, viewDepth)
	}

	headOps, err := c.store.GetStreamStructures(ctx, HeadSessionID)
	if err != nil {
		return nil, err
	}
	if err := session.populate(ctx, headOps); err != nil {
		return nil, err
	}
	c.created.Add(1)
	c.Put(ctx, token, session)
	return session, nil
}

func (c *SessionCache) persist(ctx context.Context) {
	if err := SaveSessionIndex(ctx, c.store, c.Records(), c.now()); err != nil {
		c.persistFailures.Add(1)
		c.log.errorf("Unable to persist sessions: %v", err)
	}
}

// SessionCacheStats is a diagnostics snapshot
type SessionCacheStats struct {
	Initialized     bool           `json:"initialized"`
	Sessions        int            `json:"sessions"`
	Created         int64          `json:"created"`
	Restored        int64          `json:"restored"`
	Expired         int64          `json:"expired"`
	Removed         int64          `json:"removed"`
	PersistFailures int64          `json:"persist_failures"`
	OrphansRemoved  int64          `json:"orphans_removed"`
	GCScheduled     int64          `json:"gc_scheduled"`
	Derived         []SessionStats `json:"derived,omitempty"`
}

// Stats returns the cache counters
func (c *SessionCache) Stats() SessionCacheStats {
	st := SessionCacheStats{
		Initialized:     c.IsHeadInitialized(),
		Created:         c.created.Load(),
		Restored:        c.restored.Load(),
		Expired:         c.expired.Load(),
		Removed:         c.removed.Load(),
		PersistFailures: c.persistFailures.Load(),
		OrphansRemoved:  c.orphansRemoved.Load(),
		GCScheduled:     c.gcScheduled.Load(),
	}
	for _, s := range c.Sessions() {
		st.Sessions++
		if d, ok := s.(*DerivedSession); ok {
			st.Derived = append(st.Derived, d.Stats())
		}
	}
	sort.Slice(st.Derived, func(i, j int) bool { return st.Derived[i].ID < st.Derived[j].ID })
	return st
}
