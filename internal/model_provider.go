package internal

// ProviderState is the lifecycle state of a bound consumer
type ProviderState int

const (
	ProviderInitializing ProviderState = iota
	ProviderReady
	ProviderInvalidated
)

func (s ProviderState) String() string {
	switch s {
	case ProviderInitializing:
		return "initializing"
	case ProviderReady:
		return "ready"
	case ProviderInvalidated:
		return "invalidated"
	}
	return "unknown"
}

// ModelChild is a top-level child currently visible in a consumer
type ModelChild struct {
	ContentID       string
	ParentContentID string
	IsToken         bool
}

// ModelMutation batches structural edits to a consumer's model
type ModelMutation interface {
	AddChild(op Operation) ModelMutation
	UpdateChild(op Operation) ModelMutation
	RemoveChild(op Operation) ModelMutation
	SetMutationContext(mctx *MutationContext) ModelMutation
	HasCachedBindings(cached bool) ModelMutation
	SetSessionID(sessionID string) ModelMutation
	Commit()
}

// ModelProvider is a live consumer bound to a session
type ModelProvider interface {
	Edit() ModelMutation
	Invalidate()
	CurrentState() ProviderState
	// SessionID is empty until the consumer has been given a session.
	SessionID() string
	AllRootChildren() []ModelChild
}

// ViewDepthProvider reports the deepest top-level child a user has seen
type ViewDepthProvider interface {
	ChildViewDepth() (contentID string, ok bool)
}

// SchedulerAPI is told when new content arrives
type SchedulerAPI interface {
	OnReceiveNewContent(contentCreationDateTimeMs int64)
}

// ContentListener is told about every HEAD update
type ContentListener interface {
	OnNewContentReceived(isNewRefresh bool, contentCreationDateTimeMs int64)
}

// ErrorObserver receives errors that are reported rather than returned.
// session is nil when the error is not tied to a known session.
type ErrorObserver interface {
	OnError(session Session, err *FeedError)
}

type loggingScheduler struct{ log componentLog }

func (l loggingScheduler) OnReceiveNewContent(ts int64) {
	l.log.debugf("New content received at %d", ts)
}

type loggingContentListener struct{ log componentLog }

func (l loggingContentListener) OnNewContentReceived(isNewRefresh bool, ts int64) {
	l.log.debugf("HEAD updated (new refresh: %t) at %d", isNewRefresh, ts)
}

type loggingErrorObserver struct{ log componentLog }

func (l loggingErrorObserver) OnError(session Session, err *FeedError) {
	if session != nil {
		l.log.warnf("Session %s: %v", session.SessionID(), err)
		return
	}
	l.log.warnf("%v", err)
}
