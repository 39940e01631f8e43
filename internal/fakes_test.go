package internal

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// workerContext returns a context that passes assertWorker
func workerContext() context.Context {
	return withWorker(context.Background())
}

func newTestBackend(t *testing.T) *SQLiteStore {
	t.Helper()
	backend, err := OpenEphemeralSQLiteStore()
	if err != nil {
		t.Fatalf("OpenEphemeralSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { backend.Close() })
	return backend
}

func newTestFeedStore(t *testing.T) *FeedStore {
	t.Helper()
	return NewFeedStore(newTestBackend(t), NewContentCache())
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Ephemeral = true
	cfg.DBPath = ""
	cfg.ResetTimeout = 200 * time.Millisecond
	return cfg
}

func newTestFeed(t *testing.T, opts Options) *Feed {
	t.Helper()
	f := NewFeed(newTestBackend(t), testConfig(), opts)
	t.Cleanup(func() { f.queue.Close() })
	if err := f.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	f.Flush()
	return f
}

type sessionEditing interface {
	EditSession(sessionID string) SessionEditor
}

type contentEditing interface {
	EditContent() ContentEditor
}

// commitJournal writes ops straight into a session journal
func commitJournal(t *testing.T, store sessionEditing, sessionID string, ops ...Operation) {
	t.Helper()
	editor := store.EditSession(sessionID)
	for _, op := range ops {
		editor.Add(op)
	}
	if err := editor.Commit(context.Background()); err != nil {
		t.Fatalf("Commit(%s) error = %v", sessionID, err)
	}
}

func commitFeatures(t *testing.T, store contentEditing, ids ...string) {
	t.Helper()
	editor := store.EditContent()
	for _, id := range ids {
		editor.Add(id, Payload{Kind: PayloadFeature, Feature: &Feature{Title: id}})
	}
	if err := editor.Commit(context.Background()); err != nil {
		t.Fatalf("Commit(content) error = %v", err)
	}
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeModelProvider struct {
	mu          sync.Mutex
	state       ProviderState
	sessionID   string
	children    []ModelChild
	invalidated int
	commits     []*fakeModelMutation
}

func newFakeModelProvider(sessionID string) *fakeModelProvider {
	return &fakeModelProvider{state: ProviderReady, sessionID: sessionID}
}

func (p *fakeModelProvider) Edit() ModelMutation {
	return &fakeModelMutation{provider: p}
}

func (p *fakeModelProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = ProviderInvalidated
	p.invalidated++
}

func (p *fakeModelProvider) CurrentState() ProviderState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakeModelProvider) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *fakeModelProvider) AllRootChildren() []ModelChild {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ModelChild(nil), p.children...)
}

func (p *fakeModelProvider) invalidations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.invalidated
}

func (p *fakeModelProvider) committed() []*fakeModelMutation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeModelMutation(nil), p.commits...)
}

type fakeModelMutation struct {
	provider  *fakeModelProvider
	added     []Operation
	updated   []Operation
	removed   []Operation
	mctx      *MutationContext
	cached    bool
	sessionID string
}

func (m *fakeModelMutation) AddChild(op Operation) ModelMutation {
	m.added = append(m.added, op)
	return m
}

func (m *fakeModelMutation) UpdateChild(op Operation) ModelMutation {
	m.updated = append(m.updated, op)
	return m
}

func (m *fakeModelMutation) RemoveChild(op Operation) ModelMutation {
	m.removed = append(m.removed, op)
	return m
}

func (m *fakeModelMutation) SetMutationContext(mctx *MutationContext) ModelMutation {
	m.mctx = mctx
	return m
}

func (m *fakeModelMutation) HasCachedBindings(cached bool) ModelMutation {
	m.cached = cached
	return m
}

func (m *fakeModelMutation) SetSessionID(sessionID string) ModelMutation {
	m.sessionID = sessionID
	return m
}

func (m *fakeModelMutation) Commit() {
	m.provider.mu.Lock()
	defer m.provider.mu.Unlock()
	m.provider.commits = append(m.provider.commits, m)
}

type fakeViewDepth struct {
	contentID string
	ok        bool
}

func (v fakeViewDepth) ChildViewDepth() (string, bool) {
	return v.contentID, v.ok
}

type recordingListener struct {
	mu        sync.Mutex
	refreshes []bool
}

func (l *recordingListener) OnNewContentReceived(isNewRefresh bool, _ int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes = append(l.refreshes, isNewRefresh)
}

func (l *recordingListener) calls() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.refreshes...)
}

type recordingScheduler struct {
	received atomic.Int32
}

func (s *recordingScheduler) OnReceiveNewContent(int64) {
	s.received.Add(1)
}

type recordingObserver struct {
	mu       sync.Mutex
	errs     []*FeedError
	sessions []Session
}

func (o *recordingObserver) OnError(session Session, err *FeedError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
	o.sessions = append(o.sessions, session)
}

func (o *recordingObserver) reported() ([]*FeedError, []Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*FeedError(nil), o.errs...), append([]Session(nil), o.sessions...)
}

var errInjected = errors.New("injected failure")

// recordingStore counts ClearHead calls and can fail session commits
type recordingStore struct {
	Store
	clearHeads        atomic.Int32
	ephemeralSwitches atomic.Int32
	failSessionCommit atomic.Bool
	failReads         atomic.Bool

	gateMu sync.Mutex
	gate   chan struct{}
}

// holdNextContentCommit makes the next content commit wait for gate
func (s *recordingStore) holdNextContentCommit(gate chan struct{}) {
	s.gateMu.Lock()
	s.gate = gate
	s.gateMu.Unlock()
}

func (s *recordingStore) EditContent() ContentEditor {
	s.gateMu.Lock()
	gate := s.gate
	s.gate = nil
	s.gateMu.Unlock()
	if gate == nil {
		return s.Store.EditContent()
	}
	return gatedContentEditor{ContentEditor: s.Store.EditContent(), gate: gate}
}

type gatedContentEditor struct {
	ContentEditor
	gate chan struct{}
}

func (e gatedContentEditor) Commit(ctx context.Context) error {
	<-e.gate
	return e.ContentEditor.Commit(ctx)
}

func (s *recordingStore) ClearHead(ctx context.Context) error {
	s.clearHeads.Add(1)
	return s.Store.ClearHead(ctx)
}

func (s *recordingStore) SwitchToEphemeralMode(ctx context.Context) {
	s.ephemeralSwitches.Add(1)
	s.Store.SwitchToEphemeralMode(ctx)
}

func (s *recordingStore) GetStreamStructures(ctx context.Context, sessionID string) ([]Operation, error) {
	if s.failReads.Load() {
		return nil, &StoreError{Op: "read", Session: sessionID, Err: errInjected}
	}
	return s.Store.GetStreamStructures(ctx, sessionID)
}

func (s *recordingStore) EditSession(sessionID string) SessionEditor {
	if s.failSessionCommit.Load() {
		return failingSessionEditor{sessionID: sessionID}
	}
	return s.Store.EditSession(sessionID)
}

type failingSessionEditor struct {
	sessionID string
}

func (failingSessionEditor) Add(Operation) {}

func (e failingSessionEditor) Commit(context.Context) error {
	return &StoreError{Op: "commit", Session: e.sessionID, Err: errInjected}
}
