package internal

import (
	"context"
)

// Task is a unit of work run by the TaskQueue worker
type Task func(ctx context.Context)

// ReachableFunc lazily computes the set of content ids still referenced
type ReachableFunc func() map[string]struct{}

// SessionEditor accumulates operations for one session journal
type SessionEditor interface {
	Add(op Operation)
	Commit(ctx context.Context) error
}

// ContentEditor accumulates payload writes
type ContentEditor interface {
	Add(contentID string, payload Payload)
	Commit(ctx context.Context) error
}

// SemanticPropertiesEditor accumulates semantic property writes
type SemanticPropertiesEditor interface {
	Add(contentID string, data []byte)
	Commit(ctx context.Context) error
}

// Store defines the durable persistence used by the session engine.
type Store interface {
	// GetStreamStructures returns a session journal in log order.
	GetStreamStructures(ctx context.Context, sessionID string) ([]Operation, error)

	// GetPayloads returns the payloads found for ids; missing ids are omitted.
	GetPayloads(ctx context.Context, contentIDs []string) ([]PayloadWithID, error)

	// GetSemanticProperties returns the semantic properties found for ids.
	GetSemanticProperties(ctx context.Context, contentIDs []string) (map[string][]byte, error)

	EditSession(sessionID string) SessionEditor
	EditContent() ContentEditor
	EditSemanticProperties() SemanticPropertiesEditor

	// GetAllSessions lists every session id that has a journal, HEAD excluded.
	GetAllSessions(ctx context.Context) ([]string, error)

	RemoveSession(ctx context.Context, sessionID string) error

	// ClearHead drops the HEAD journal. Content is left for garbage collection.
	ClearHead(ctx context.Context) error

	// SwitchToEphemeralMode moves the store onto volatile storage.
	SwitchToEphemeralMode(ctx context.Context)
	IsEphemeralMode() bool

	// TriggerContentGC returns a task deleting content that is neither
	// reserved nor reachable at the time the task runs.
	TriggerContentGC(reserved []string, reachable ReachableFunc) Task
}
