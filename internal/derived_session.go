package internal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DerivedSession is a view created from HEAD and optionally bound to a
// live consumer. A timeout session is a DerivedSession that bridges
// provisional content across exactly one HEAD reset.
type DerivedSession struct {
	id                 string
	store              Store
	queue              *TaskQueue
	limitPagingUpdates bool
	timeout            bool
	members            *membership
	log                componentLog

	mu                sync.RWMutex
	lastAccessed      time.Time
	provider          ModelProvider
	viewDepth         ViewDepthProvider
	legacyHeadContent bool

	updates        atomic.Int64
	skipped        atomic.Int64
	commitFailures atomic.Int64
}

// DerivedSessionOptions configures a new DerivedSession
type DerivedSessionOptions struct {
	LimitPagingUpdates bool
	// LegacyHeadContent makes the session a timeout session.
	LegacyHeadContent bool
	LastAccessed      time.Time
}

// NewDerivedSession creates an unbound session with an empty membership
func NewDerivedSession(id string, store Store, queue *TaskQueue, opts DerivedSessionOptions) *DerivedSession {
	return &DerivedSession{
		id:                 id,
		store:              store,
		queue:              queue,
		limitPagingUpdates: opts.LimitPagingUpdates,
		timeout:            opts.LegacyHeadContent,
		legacyHeadContent:  opts.LegacyHeadContent,
		lastAccessed:       opts.LastAccessed,
		members:            newMembership(),
		log:                newComponentLog("Session " + id),
	}
}

func (s *DerivedSession) SessionID() string {
	return s.id
}

func (s *DerivedSession) Record() SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionRecord{Token: s.id, LastAccessed: s.lastAccessed}
}

func (s *DerivedSession) SetLastAccessed(t time.Time) {
	s.mu.Lock()
	s.lastAccessed = t
	s.mu.Unlock()
}

func (s *DerivedSession) Contains(contentID string) bool {
	return s.members.contains(contentID)
}

func (s *DerivedSession) ContentInSession() map[string]struct{} {
	return s.members.snapshot()
}

// InvalidateOnResetHead is false for timeout sessions, which exist to
// survive one reset.
func (s *DerivedSession) InvalidateOnResetHead() bool {
	return !s.timeout
}

// IsTimeoutSession reports whether the session was created to bridge
// provisional content
func (s *DerivedSession) IsTimeoutSession() bool {
	return s.timeout
}

// HasLegacyHeadContent reports whether the one-time bridge is still pending
func (s *DerivedSession) HasLegacyHeadContent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.legacyHeadContent
}

func (s *DerivedSession) ModelProvider() ModelProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

func (s *DerivedSession) BindModelProvider(provider ModelProvider, viewDepth ViewDepthProvider) {
	s.mu.Lock()
	s.provider = provider
	s.viewDepth = viewDepth
	s.mu.Unlock()
}

func (s *DerivedSession) UnbindModelProvider() {
	s.mu.Lock()
	s.provider = nil
	s.viewDepth = nil
	s.mu.Unlock()
}

type updateOptions struct {
	persist        bool
	cachedBindings bool
}

// UpdateSession applies a committed batch to this session
func (s *DerivedSession) UpdateSession(ctx context.Context, clearHead bool, ops []Operation, mctx *MutationContext) {
	assertWorker(ctx, "Session.UpdateSession")
	s.update(ctx, clearHead, ops, mctx, updateOptions{persist: true, cachedBindings: true})
}

func (s *DerivedSession) update(ctx context.Context, clearHead bool, ops []Operation, mctx *MutationContext, opts updateOptions) {
	if clearHead && !s.HasLegacyHeadContent() {
		s.skipped.Add(1)
		s.log.debugf("Ignoring HEAD reset batch")
		return
	}
	if tokenIsStale(s.members, mctx) {
		s.skipped.Add(1)
		s.log.debugf("Ignoring update, token %s is not in session", mctx.ContinuationToken.ContentID)
		return
	}
	if s.limitPagingUpdates && mctx.continuationToken() != nil && mctx.requestingSessionID() != s.id {
		s.skipped.Add(1)
		s.log.debugf("Ignoring paging update requested by %q", mctx.requestingSessionID())
		return
	}

	// the bridge is spent only by a batch that gets applied
	if clearHead {
		ops = s.bridgeLegacyContent(ops)
	}
	// ClearAll only empties HEAD
	ops = withoutClearAll(ops)

	var editor SessionEditor
	if opts.persist {
		editor = s.store.EditSession(s.id)
	}
	var mutation ModelMutation
	if provider := s.ModelProvider(); provider != nil {
		mutation = provider.Edit().
			HasCachedBindings(opts.cachedBindings).
			SetMutationContext(mctx).
			SetSessionID(s.id)
	}

	res := applyOperations(s.members, ops, operationSink{
		onAppend: func(op Operation) {
			if editor != nil {
				editor.Add(op)
			}
			if mutation != nil {
				mutation.AddChild(op)
			}
		},
		onUpdate: func(op Operation) {
			if mutation != nil {
				mutation.UpdateChild(op)
			}
		},
		onRemove: func(op Operation) {
			if editor != nil {
				editor.Add(op)
			}
			if mutation != nil {
				mutation.RemoveChild(op)
			}
		},
	}, s.log)
	s.updates.Add(1)

	if editor != nil {
		priority := PriorityUserFacing
		if mctx.userInitiated() {
			priority = PriorityImmediate
		}
		s.queue.Execute("commitSession "+s.id, priority, func(ctx context.Context) {
			if err := editor.Commit(ctx); err != nil {
				s.commitFailures.Add(1)
				s.log.errorf("Journal commit failed: %v", err)
			}
		})
	}
	if mutation != nil {
		mutation.Commit()
	}
	s.log.debugf("Updated: +%d ~%d -%d cleared=%t", res.appended, res.updated, res.removed, res.cleared)
}

// bridgeLegacyContent prepends removes for every root child below the
// deepest child the user has seen, plus any token child. It runs once.
func (s *DerivedSession) bridgeLegacyContent(ops []Operation) []Operation {
	s.mu.Lock()
	s.legacyHeadContent = false
	provider, viewDepth := s.provider, s.viewDepth
	s.mu.Unlock()

	if provider == nil {
		return ops
	}

	lowest, seen := "", false
	if viewDepth != nil {
		lowest, seen = viewDepth.ChildViewDepth()
	}

	// with nothing seen, every child is unseen
	pastSeen := !seen
	var removes []Operation
	for _, child := range provider.AllRootChildren() {
		if pastSeen || child.IsToken {
			removes = append(removes, NewRemove(child.ContentID, child.ParentContentID))
		}
		if !pastSeen && child.ContentID == lowest {
			pastSeen = true
		}
	}
	s.log.debugf("Bridging HEAD reset, removing %d unseen children", len(removes))
	return append(removes, ops...)
}

// restore replays a persisted journal into membership
func (s *DerivedSession) restore(ctx context.Context, ops []Operation) {
	s.update(ctx, false, ops, nil, updateOptions{persist: false, cachedBindings: false})
}

// populate seeds a new session from HEAD's journal, writing it to this
// session's journal and mirroring it into the bound consumer.
func (s *DerivedSession) populate(ctx context.Context, headOps []Operation) error {
	editor := s.store.EditSession(s.id)
	var mutation ModelMutation
	if provider := s.ModelProvider(); provider != nil {
		mutation = provider.Edit().HasCachedBindings(false).SetSessionID(s.id)
	}

	applyOperations(s.members, headOps, operationSink{
		onAppend: func(op Operation) {
			editor.Add(op)
			if mutation != nil {
				mutation.AddChild(op)
			}
		},
		onUpdate: func(op Operation) {
			if mutation != nil {
				mutation.UpdateChild(op)
			}
		},
		onRemove: func(op Operation) {
			editor.Add(op)
			if mutation != nil {
				mutation.RemoveChild(op)
			}
		},
	}, s.log)

	if err := editor.Commit(ctx); err != nil {
		s.commitFailures.Add(1)
		return fmt.Errorf("populate session %s: %w", s.id, err)
	}
	if mutation != nil {
		mutation.Commit()
	}
	return nil
}

// SessionStats is a diagnostics snapshot of one derived session
type SessionStats struct {
	ID             string `json:"id"`
	Size           int    `json:"size"`
	Bound          bool   `json:"bound"`
	Timeout        bool   `json:"timeout"`
	Updates        int64  `json:"updates"`
	Skipped        int64  `json:"skipped"`
	CommitFailures int64  `json:"commit_failures"`
}

// Stats returns the session counters
func (s *DerivedSession) Stats() SessionStats {
	return SessionStats{
		ID:             s.id,
		Size:           s.members.size(),
		Bound:          s.ModelProvider() != nil,
		Timeout:        s.timeout,
		Updates:        s.updates.Load(),
		Skipped:        s.skipped.Load(),
		CommitFailures: s.commitFailures.Load(),
	}
}
