package internal

import (
	"context"
	"fmt"
	"time"
)

// Options are the external collaborators of a Feed. Nil members log.
type Options struct {
	Scheduler SchedulerAPI
	Listener  ContentListener
	Observer  ErrorObserver
	Now       func() time.Time
}

// Feed wires the store, the task queue, the sessions and the commit
// pipeline together.
type Feed struct {
	cfg          Config
	store        *FeedStore
	contentCache *ContentCache
	queue        *TaskQueue
	sessions     *SessionCache
	resetter     *HeadResetter
	committers   *CommitterFactory
	now          func() time.Time
	log          componentLog
}

// OpenFeed opens the store described by cfg and builds a Feed over it
func OpenFeed(cfg Config, opts Options) (*Feed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		backend *SQLiteStore
		err     error
	)
	if cfg.Ephemeral {
		backend, err = OpenEphemeralSQLiteStore()
	} else {
		backend, err = OpenSQLiteStore(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return NewFeed(backend, cfg, opts), nil
}

// NewFeed builds a Feed over an open backend
func NewFeed(backend *SQLiteStore, cfg Config, opts Options) *Feed {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	contentCache := NewContentCache()
	store := NewFeedStore(backend, contentCache)
	queue := NewTaskQueue(cfg.ResetTimeout)
	sessions := NewSessionCache(store, queue, SessionCacheOptions{
		Lifetime:           cfg.SessionLifetime,
		LimitPagingUpdates: cfg.LimitPagingUpdates,
		Now:                opts.Now,
	})
	resetter := NewHeadResetter(store, sessions)
	committers := NewCommitterFactory(CommitterDeps{
		Store:        store,
		ContentCache: contentCache,
		Sessions:     sessions,
		Resetter:     resetter,
		Queue:        queue,
		Scheduler:    opts.Scheduler,
		Listener:     opts.Listener,
		Observer:     opts.Observer,
		Now:          opts.Now,
	})
	return &Feed{
		cfg:          cfg,
		store:        store,
		contentCache: contentCache,
		queue:        queue,
		sessions:     sessions,
		resetter:     resetter,
		committers:   committers,
		now:          opts.Now,
		log:          newComponentLog("Feed"),
	}
}

// Initialize loads HEAD and starts restoring persisted sessions
func (f *Feed) Initialize(ctx context.Context) error {
	var ok bool
	if err := f.queue.RunAndWait(ctx, "initialize", PriorityImmediate, func(ctx context.Context) {
		ok = f.sessions.Initialize(ctx)
	}); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unable to load HEAD: %w", ErrUninitializable)
	}
	return nil
}

// Store returns the store backing the feed
func (f *Feed) Store() *FeedStore {
	return f.store
}

// Sessions returns the session registry
func (f *Feed) Sessions() *SessionCache {
	return f.sessions
}

// Queue returns the task queue
func (f *Feed) Queue() *TaskQueue {
	return f.queue
}

// NewCommitter returns a committer for one mutation
func (f *Feed) NewCommitter(mctx *MutationContext, callback func(error)) *MutationCommitter {
	return f.committers.Create(mctx, callback)
}

// Commit accepts res and waits until it has been applied
func (f *Feed) Commit(ctx context.Context, mctx *MutationContext, res Result) error {
	done := make(chan error, 1)
	committer := f.committers.Create(mctx, func(err error) { done <- err })
	committer.Accept(res)
	f.Flush()
	if !res.IsSuccess() {
		// reported to the ErrorObserver
		return nil
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetHead schedules a HEAD reset by an external actor
func (f *Feed) ResetHead() {
	f.queue.Execute("resetHead", PriorityHeadReset, f.resetHead)
}

// ForceResetHead resets HEAD ahead of all other work and waits for it
func (f *Feed) ForceResetHead(ctx context.Context) error {
	return f.queue.RunAndWait(ctx, "forceResetHead", PriorityImmediate, f.resetHead)
}

func (f *Feed) resetHead(ctx context.Context) {
	f.resetter.ResetHead(ctx, "")
	f.sessions.Head().reset()
}

// InvalidateHead holds user-facing and background work until the next
// HEAD reset or the reset timeout.
func (f *Feed) InvalidateHead() {
	f.queue.Execute("invalidateHead", PriorityHeadInvalidate, func(context.Context) {})
}

// CreateSession creates a session seeded from HEAD
func (f *Feed) CreateSession(ctx context.Context, provider ModelProvider, viewDepth ViewDepthProvider, legacyHeadContent bool) (*DerivedSession, error) {
	var (
		session *DerivedSession
		err     error
	)
	if werr := f.queue.RunAndWait(ctx, "createSession", PriorityImmediate, func(ctx context.Context) {
		session, err = f.sessions.CreateSession(ctx, provider, viewDepth, legacyHeadContent)
	}); werr != nil {
		return nil, werr
	}
	return session, err
}

// RemoveSession drops a session and its journal
func (f *Feed) RemoveSession(ctx context.Context, token string) error {
	return f.queue.RunAndWait(ctx, "removeSession", PriorityUserFacing, func(ctx context.Context) {
		f.sessions.Remove(ctx, token)
	})
}

// TouchSession refreshes the access time of a session
func (f *Feed) TouchSession(ctx context.Context, token string) error {
	return f.queue.RunAndWait(ctx, "touchSession", PriorityUserFacing, func(ctx context.Context) {
		f.sessions.UpdateAccessTime(ctx, token)
	})
}

// DetachModelProvider unbinds the consumer of token
func (f *Feed) DetachModelProvider(token string) {
	f.sessions.DetachModelProvider(token)
}

// HeadStructure loads HEAD as a tree
func (f *Feed) HeadStructure(ctx context.Context) (*HeadAsStructure, error) {
	h := NewHeadAsStructure(f.store)
	if err := h.Initialize(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// ContentEntry is one node of a HEAD snapshot
type ContentEntry struct {
	ContentID       string      `json:"content_id" yaml:"content_id"`
	ParentContentID string      `json:"parent_content_id,omitempty" yaml:"parent_content_id,omitempty"`
	Depth           int         `json:"depth" yaml:"depth"`
	Kind            PayloadKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Feature         *Feature    `json:"feature,omitempty" yaml:"feature,omitempty"`
	NextPageToken   string      `json:"next_page_token,omitempty" yaml:"next_page_token,omitempty"`
}

// Snapshot is HEAD flattened in pre-order
type Snapshot struct {
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	Sessions    int            `json:"sessions" yaml:"sessions"`
	Entries     []ContentEntry `json:"entries" yaml:"entries"`
}

// Snapshot reads HEAD from the store and flattens it
func (f *Feed) Snapshot(ctx context.Context) (*Snapshot, error) {
	head, err := f.HeadStructure(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := SnapshotEntries(head)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		GeneratedAt: f.now(),
		Sessions:    len(f.sessions.SessionIDs()),
		Entries:     entries,
	}, nil
}

// SnapshotEntries flattens an initialized HEAD tree in pre-order
func SnapshotEntries(head *HeadAsStructure) ([]ContentEntry, error) {
	return FilterHead(head, func(n *TreeNode) (ContentEntry, bool) {
		entry := ContentEntry{
			ContentID:       n.ContentID(),
			ParentContentID: n.Operation.ParentContentID,
			Depth:           head.depthLocked(n),
			Kind:            n.Payload.Kind,
			Feature:         n.Payload.Feature,
		}
		if n.Payload.Token != nil {
			entry.NextPageToken = n.Payload.Token.NextPageToken
		}
		return entry, true
	})
}

// RunContentGC schedules content garbage collection and journal cleanup
func (f *Feed) RunContentGC() {
	f.sessions.RunGarbageCollection()
}

// Flush waits for queued work and in-flight content commits
func (f *Feed) Flush() {
	f.queue.Flush()
	f.committers.Wait()
}

// Close drains queued work and closes the store
func (f *Feed) Close() error {
	f.Flush()
	f.queue.Close()
	return f.store.Close()
}
