package internal

import (
	"context"
	"sync/atomic"
)

// HeadResetter clears HEAD and invalidates the consumers that were
// looking at it.
type HeadResetter struct {
	store    Store
	sessions *SessionCache
	log      componentLog

	resets      atomic.Int64
	failures    atomic.Int64
	invalidated atomic.Int64
}

// NewHeadResetter creates a resetter over store and sessions
func NewHeadResetter(store Store, sessions *SessionCache) *HeadResetter {
	return &HeadResetter{
		store:    store,
		sessions: sessions,
		log:      newComponentLog("HeadResetter"),
	}
}

// ResetHead clears the HEAD journal and invalidates bound consumers.
// initiatingSessionID is empty when HEAD was cleared by an external actor.
func (r *HeadResetter) ResetHead(ctx context.Context, initiatingSessionID string) {
	assertWorker(ctx, "HeadResetter.ResetHead")
	r.resets.Add(1)

	if err := r.store.ClearHead(ctx); err != nil {
		r.failures.Add(1)
		r.log.errorf("Unable to clear HEAD: %v", err)
	}

	for _, s := range r.sessions.Sessions() {
		provider := s.ModelProvider()
		if provider == nil || !shouldInvalidate(s, provider, initiatingSessionID) {
			continue
		}
		r.log.debugf("Invalidating consumer of %s", s.SessionID())
		provider.Invalidate()
		r.invalidated.Add(1)
	}
}

// shouldInvalidate keeps one session's pagination from invalidating its
// siblings: only a ready consumer that has no session yet, or belongs to
// the initiator, is invalidated. Any ready consumer is invalidated when
// there is no initiator.
func shouldInvalidate(s Session, provider ModelProvider, initiatingSessionID string) bool {
	if !s.InvalidateOnResetHead() {
		return false
	}
	if provider.CurrentState() != ProviderReady {
		return false
	}
	consumerSession := provider.SessionID()
	return initiatingSessionID == "" || consumerSession == "" || consumerSession == initiatingSessionID
}

// HeadResetStats is a diagnostics snapshot
type HeadResetStats struct {
	Resets      int64 `json:"resets"`
	Failures    int64 `json:"failures"`
	Invalidated int64 `json:"invalidated"`
}

// Stats returns the reset counters
func (r *HeadResetter) Stats() HeadResetStats {
	return HeadResetStats{
		Resets:      r.resets.Load(),
		Failures:    r.failures.Load(),
		Invalidated: r.invalidated.Load(),
	}
}
