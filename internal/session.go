package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Session is a view over HEAD's history. Sessions are only mutated by
// UpdateSession, which runs on the TaskQueue worker.
type Session interface {
	SessionID() string
	Record() SessionRecord
	SetLastAccessed(t time.Time)

	UpdateSession(ctx context.Context, clearHead bool, ops []Operation, mctx *MutationContext)

	Contains(contentID string) bool
	ContentInSession() map[string]struct{}

	// InvalidateOnResetHead reports whether a HEAD reset should invalidate
	// the bound consumer.
	InvalidateOnResetHead() bool

	// ModelProvider returns the bound consumer, or nil when unbound.
	ModelProvider() ModelProvider
	BindModelProvider(provider ModelProvider, viewDepth ViewDepthProvider)
	UnbindModelProvider()
}

// membership is the set of content ids a session considers present.
// Writes happen on the worker only; mu lets other goroutines take snapshots.
type membership struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func newMembership() *membership {
	return &membership{ids: make(map[string]struct{})}
}

func (m *membership) contains(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ids[id]
	return ok
}

func (m *membership) add(id string) {
	m.mu.Lock()
	m.ids[id] = struct{}{}
	m.mu.Unlock()
}

func (m *membership) remove(id string) {
	m.mu.Lock()
	delete(m.ids, id)
	m.mu.Unlock()
}

func (m *membership) clear() {
	m.mu.Lock()
	clear(m.ids)
	m.mu.Unlock()
}

func (m *membership) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

func (m *membership) snapshot() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.ids))
	for id := range m.ids {
		out[id] = struct{}{}
	}
	return out
}

// operationSink receives the effective edits produced by applyOperations
type operationSink struct {
	onAppend func(op Operation)
	onUpdate func(op Operation)
	onRemove func(op Operation)
	onClear  func()
}

type applyResult struct {
	cleared  bool
	appended int
	updated  int
	removed  int
	ignored  int
}

// applyOperations applies ops to members: an Append of a non-member adds it,
// an Append of a member is an update, a Remove drops a member and a
// ClearAll empties the set.
func applyOperations(members *membership, ops []Operation, sink operationSink, log componentLog) applyResult {
	var res applyResult
	for _, op := range ops {
		switch op.Kind {
		case OperationAppend:
			if members.contains(op.ContentID) {
				res.updated++
				if sink.onUpdate != nil {
					sink.onUpdate(op)
				}
				continue
			}
			members.add(op.ContentID)
			res.appended++
			if sink.onAppend != nil {
				sink.onAppend(op)
			}
		case OperationRemove:
			if !members.contains(op.ContentID) {
				res.ignored++
				log.debugf("Remove of non-member %s ignored", op.ContentID)
				continue
			}
			if sink.onRemove != nil {
				sink.onRemove(op)
			}
			members.remove(op.ContentID)
			res.removed++
		case OperationClearAll:
			members.clear()
			res.cleared = true
			if sink.onClear != nil {
				sink.onClear()
			}
		}
	}
	return res
}

func withoutClearAll(ops []Operation) []Operation {
	out := ops[:0:0]
	for _, op := range ops {
		if op.Kind != OperationClearAll {
			out = append(out, op)
		}
	}
	return out
}

// tokenIsStale reports whether mctx paginates from a token this session
// does not hold.
func tokenIsStale(members *membership, mctx *MutationContext) bool {
	token := mctx.continuationToken()
	return token != nil && !members.contains(token.ContentID)
}

// HeadSession is the canonical, never expiring view. It has no consumer.
type HeadSession struct {
	store   Store
	members *membership
	log     componentLog

	recordMu     sync.RWMutex
	lastAccessed time.Time

	updates        atomic.Int64
	skipped        atomic.Int64
	commitFailures atomic.Int64
}

// NewHeadSession creates an empty HEAD session
func NewHeadSession(store Store) *HeadSession {
	return &HeadSession{
		store:   store,
		members: newMembership(),
		log:     newComponentLog("HeadSession"),
	}
}

func (h *HeadSession) SessionID() string {
	return HeadSessionID
}

func (h *HeadSession) Record() SessionRecord {
	h.recordMu.RLock()
	defer h.recordMu.RUnlock()
	return SessionRecord{Token: HeadSessionID, LastAccessed: h.lastAccessed}
}

func (h *HeadSession) SetLastAccessed(t time.Time) {
	h.recordMu.Lock()
	h.lastAccessed = t
	h.recordMu.Unlock()
}

func (h *HeadSession) Contains(contentID string) bool {
	return h.members.contains(contentID)
}

func (h *HeadSession) ContentInSession() map[string]struct{} {
	return h.members.snapshot()
}

// InvalidateOnResetHead is false: HEAD is the thing being reset.
func (h *HeadSession) InvalidateOnResetHead() bool {
	return false
}

func (h *HeadSession) ModelProvider() ModelProvider {
	return nil
}

func (h *HeadSession) BindModelProvider(ModelProvider, ViewDepthProvider) {
	h.log.warnf("HEAD cannot be bound to a consumer")
}

func (h *HeadSession) UnbindModelProvider() {}

// UpdateSession applies ops to HEAD and commits them to the HEAD journal.
// A failed commit switches the store to ephemeral mode; it is not retried.
func (h *HeadSession) UpdateSession(ctx context.Context, clearHead bool, ops []Operation, mctx *MutationContext) {
	assertWorker(ctx, "HeadSession.UpdateSession")

	if tokenIsStale(h.members, mctx) {
		h.skipped.Add(1)
		h.log.debugf("Ignoring update, token %s is not in HEAD", mctx.ContinuationToken.ContentID)
		return
	}

	editor := h.store.EditSession(HeadSessionID)
	record := func(op Operation) { editor.Add(op) }
	res := applyOperations(h.members, ops, operationSink{
		onAppend: record,
		onRemove: record,
		// the journal was cleared with HEAD; ops queued before the
		// ClearAll must not reach it
		onClear: func() { editor = h.store.EditSession(HeadSessionID) },
	}, h.log)
	h.updates.Add(1)

	if err := editor.Commit(ctx); err != nil {
		h.commitFailures.Add(1)
		h.log.errorf("HEAD commit failed, switching to ephemeral mode: %v", err)
		h.store.SwitchToEphemeralMode(ctx)
	}
	h.log.debugf("Updated: +%d ~%d -%d cleared=%t", res.appended, res.updated, res.removed, res.cleared)
}

// replayJournal loads a HEAD journal into membership without writing it back
func (h *HeadSession) replayJournal(ops []Operation) {
	applyOperations(h.members, ops, operationSink{}, h.log)
}

// reset empties the membership
func (h *HeadSession) reset() {
	h.members.clear()
}

// HeadSessionStats is a diagnostics snapshot
type HeadSessionStats struct {
	Size           int   `json:"size"`
	Updates        int64 `json:"updates"`
	Skipped        int64 `json:"skipped"`
	CommitFailures int64 `json:"commit_failures"`
}

// Stats returns the HEAD counters
func (h *HeadSession) Stats() HeadSessionStats {
	return HeadSessionStats{
		Size:           h.members.size(),
		Updates:        h.updates.Load(),
		Skipped:        h.skipped.Load(),
		CommitFailures: h.commitFailures.Load(),
	}
}
