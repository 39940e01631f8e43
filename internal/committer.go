package internal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// CommitterDeps are the collaborators shared by every MutationCommitter
type CommitterDeps struct {
	Store        Store
	ContentCache *ContentCache
	Sessions     *SessionCache
	Resetter     *HeadResetter
	Queue        *TaskQueue
	Scheduler    SchedulerAPI
	Listener     ContentListener
	Observer     ErrorObserver
	Now          func() time.Time
}

// CommitterFactory creates one MutationCommitter per logical mutation and
// keeps the counters they share.
type CommitterFactory struct {
	deps CommitterDeps
	log  componentLog

	// tracks content commits still running off the worker
	pending sync.WaitGroup
	// closed when the latest content commit has left the ContentCache;
	// only touched on the worker
	contentDone chan struct{}

	commits          atomic.Int64
	failures         atomic.Int64
	invalidOps       atomic.Int64
	contentFailures  atomic.Int64
	sessionsDropped  atomic.Int64
	contentCommitted atomic.Int64
}

// NewCommitterFactory fills in logging collaborators for any left nil
func NewCommitterFactory(deps CommitterDeps) *CommitterFactory {
	if deps.Scheduler == nil {
		deps.Scheduler = loggingScheduler{log: newComponentLog("Scheduler")}
	}
	if deps.Listener == nil {
		deps.Listener = loggingContentListener{log: newComponentLog("ContentListener")}
	}
	if deps.Observer == nil {
		deps.Observer = loggingErrorObserver{log: newComponentLog("ErrorObserver")}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &CommitterFactory{deps: deps, log: newComponentLog("Committer")}
}

// Create returns a committer for one mutation. callback, when set, is
// called once the content of the mutation is durable.
func (f *CommitterFactory) Create(mctx *MutationContext, callback func(error)) *MutationCommitter {
	return &MutationCommitter{factory: f, mctx: mctx, callback: callback}
}

// Wait blocks until every content commit started so far has finished
func (f *CommitterFactory) Wait() {
	f.pending.Wait()
}

// MutationCommitter turns one Result into content writes and session
// updates.
type MutationCommitter struct {
	factory  *CommitterFactory
	mctx     *MutationContext
	callback func(error)

	ops        []DataOperation
	cleared    bool
	structural []Operation
}

// Accept consumes the outcome of producing the mutation batch
func (m *MutationCommitter) Accept(res Result) {
	f := m.factory
	if !res.IsSuccess() {
		m.reportFailure(res.Err)
		return
	}

	m.ops = res.Operations
	for _, dop := range m.ops {
		if dop.Structure != nil && dop.Structure.Kind == OperationClearAll {
			m.cleared = true
			break
		}
	}

	priority := PriorityUserFacing
	switch {
	case m.mctx.userInitiated():
		priority = PriorityImmediate
	case m.cleared:
		priority = PriorityHeadReset
	}
	f.commits.Add(1)
	f.deps.Queue.Execute("commitMutation", priority, m.commit)
}

func (m *MutationCommitter) reportFailure(err error) {
	f := m.factory
	f.failures.Add(1)

	var session Session
	if id := m.mctx.requestingSessionID(); id != "" {
		session, _ = f.deps.Sessions.Get(id)
	}
	if token := m.mctx.continuationToken(); token != nil {
		f.deps.Observer.OnError(session, &FeedError{Kind: PaginationError, Token: token, Cause: err})
		return
	}
	f.deps.Observer.OnError(session, &FeedError{Kind: NoCardsError, Cause: err})
	// releases work held by a pending HEAD invalidation
	f.deps.Queue.Execute("noCardsFence", PriorityHeadReset, func(context.Context) {})
}

func (m *MutationCommitter) commit(ctx context.Context) {
	m.commitContent(ctx)
	m.commitSessionUpdates(ctx)
}

// awaitContent blocks until the previous content commit has closed its
// ContentCache window.
func (f *CommitterFactory) awaitContent(ctx context.Context) {
	if f.contentDone == nil {
		return
	}
	select {
	case <-f.contentDone:
	case <-ctx.Done():
		f.log.warnf("Stopped waiting for the previous content commit: %v", ctx.Err())
	}
}

func (m *MutationCommitter) commitContent(ctx context.Context) {
	f := m.factory
	cache := f.deps.ContentCache
	f.awaitContent(ctx)
	cache.StartMutation()
	done := make(chan struct{})
	f.contentDone = done

	contentEditor := f.deps.Store.EditContent()
	semanticEditor := f.deps.Store.EditSemanticProperties()

	for _, dop := range m.ops {
		if dop.Structure == nil {
			m.invalid(&InvalidOperationError{Reason: "missing structure"})
			continue
		}
		op := *dop.Structure
		switch op.Kind {
		case OperationClearAll:
			m.structural = append(m.structural, op)
			f.deps.Resetter.ResetHead(ctx, m.mctx.requestingSessionID())
		case OperationAppend:
			if dop.Payload == nil {
				m.invalid(&InvalidOperationError{ContentID: op.ContentID, Reason: "missing payload"})
				continue
			}
			if op.ContentID == "" {
				m.invalid(&InvalidOperationError{Reason: "empty content id"})
				continue
			}
			payload := *dop.Payload
			cache.Put(op.ContentID, payload)
			switch payload.Kind {
			case PayloadSharedState:
				contentEditor.Add(op.ContentID, payload)
			case PayloadFeature, PayloadToken:
				contentEditor.Add(op.ContentID, payload)
				m.structural = append(m.structural, op)
			case PayloadSemanticData:
				semanticEditor.Add(op.ContentID, payload.Data)
			default:
				m.invalid(&InvalidOperationError{ContentID: op.ContentID, Reason: "unsupported payload kind " + string(payload.Kind)})
			}
		case OperationRemove:
			m.structural = append(m.structural, op)
		default:
			m.invalid(&InvalidOperationError{ContentID: op.ContentID, Reason: "unknown operation"})
		}
	}

	f.pending.Add(1)
	go func() {
		defer f.pending.Done()
		var g errgroup.Group
		g.Go(func() error { return contentEditor.Commit(ctx) })
		g.Go(func() error { return semanticEditor.Commit(ctx) })
		err := g.Wait()
		if err != nil {
			f.contentFailures.Add(1)
			f.log.errorf("Content commit failed: %v", err)
		} else {
			f.contentCommitted.Add(1)
		}
		cache.FinishMutation()
		close(done)
		if m.callback != nil {
			m.callback(err)
		}
	}()
}

func (m *MutationCommitter) invalid(err *InvalidOperationError) {
	m.factory.invalidOps.Add(1)
	m.factory.log.warnf("Skipping operation: %v", err)
}

func (m *MutationCommitter) commitSessionUpdates(ctx context.Context) {
	f := m.factory
	ops := m.structural
	if token := m.mctx.continuationToken(); token != nil {
		// pagination cursors are single use
		ops = append([]Operation{NewRemove(token.ContentID, token.ParentContentID)}, ops...)
	}

	for _, s := range f.deps.Sessions.Sessions() {
		if provider := s.ModelProvider(); provider != nil && provider.CurrentState() == ProviderInvalidated {
			f.log.debugf("Dropping session %s with invalidated consumer", s.SessionID())
			f.deps.Sessions.Remove(ctx, s.SessionID())
			f.sessionsDropped.Add(1)
			continue
		}

		s.UpdateSession(ctx, m.cleared, ops, m.mctx)

		if s.SessionID() != HeadSessionID {
			continue
		}
		now := f.deps.Now()
		if m.cleared {
			s.SetLastAccessed(now)
			f.deps.Sessions.persist(ctx)
			f.deps.Scheduler.OnReceiveNewContent(now.UnixMilli())
			f.deps.Listener.OnNewContentReceived(true, now.UnixMilli())
		} else {
			f.deps.Listener.OnNewContentReceived(false, now.UnixMilli())
		}
	}
}

// CommitterStats is a diagnostics snapshot
type CommitterStats struct {
	Commits          int64 `json:"commits"`
	Failures         int64 `json:"failures"`
	InvalidOps       int64 `json:"invalid_operations"`
	ContentCommitted int64 `json:"content_committed"`
	ContentFailures  int64 `json:"content_failures"`
	SessionsDropped  int64 `json:"sessions_dropped"`
}

// Stats returns the committer counters
func (f *CommitterFactory) Stats() CommitterStats {
	return CommitterStats{
		Commits:          f.commits.Load(),
		Failures:         f.failures.Load(),
		InvalidOps:       f.invalidOps.Load(),
		ContentCommitted: f.contentCommitted.Load(),
		ContentFailures:  f.contentFailures.Load(),
		SessionsDropped:  f.sessionsDropped.Load(),
	}
}
