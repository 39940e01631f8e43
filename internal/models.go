package internal

import (
	"fmt"
	"strings"
	"time"
)

// HeadSessionID is the sentinel token of the canonical session.
const HeadSessionID = "$HEAD"

// SessionIndexContentID is the reserved payload id that holds the persisted
// session records.
const SessionIndexContentID = "$sessions"

// OperationKind is the structural instruction carried by an Operation
type OperationKind int

const (
	OperationAppend OperationKind = iota
	OperationRemove
	OperationClearAll
)

var operationKindNames = map[OperationKind]string{
	OperationAppend:   "append",
	OperationRemove:   "remove",
	OperationClearAll: "clear_all",
}

func (k OperationKind) String() string {
	if name, ok := operationKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the kind by name so journals and batch files stay readable
func (k OperationKind) MarshalText() ([]byte, error) {
	name, ok := operationKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %d", int(k))
	}
	return []byte(name), nil
}

// UnmarshalText parses an operation kind name
func (k *OperationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseOperationKind parses an operation kind name
func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "append", "update_or_append":
		return OperationAppend, nil
	case "remove":
		return OperationRemove, nil
	case "clear_all", "clear":
		return OperationClearAll, nil
	}
	return 0, fmt.Errorf("invalid operation kind %q (valid: append, remove, clear_all)", s)
}

// Operation is a structural instruction on the content tree. An empty
// ParentContentID means the operation has no parent.
type Operation struct {
	ContentID       string        `json:"content_id" yaml:"content_id"`
	ParentContentID string        `json:"parent_content_id,omitempty" yaml:"parent_content_id,omitempty"`
	Kind            OperationKind `json:"kind" yaml:"kind"`
}

// HasParent reports whether the operation names a parent
func (o Operation) HasParent() bool {
	return o.ParentContentID != ""
}

func (o Operation) String() string {
	if o.HasParent() {
		return fmt.Sprintf("%s(%s, %s)", o.Kind, o.ContentID, o.ParentContentID)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.ContentID)
}

// NewAppend creates an Append operation
func NewAppend(contentID, parentContentID string) Operation {
	return Operation{ContentID: contentID, ParentContentID: parentContentID, Kind: OperationAppend}
}

// NewRemove creates a Remove operation
func NewRemove(contentID, parentContentID string) Operation {
	return Operation{ContentID: contentID, ParentContentID: parentContentID, Kind: OperationRemove}
}

// NewClearAll creates a ClearAll operation
func NewClearAll() Operation {
	return Operation{Kind: OperationClearAll}
}

// PayloadKind identifies which member of the payload union is set
type PayloadKind string

const (
	PayloadFeature      PayloadKind = "feature"
	PayloadToken        PayloadKind = "token"
	PayloadSharedState  PayloadKind = "shared_state"
	PayloadSemanticData PayloadKind = "semantic_data"
	PayloadSessionSet   PayloadKind = "session_set"
)

// Feature is a renderable piece of content (card, cluster, stream root)
type Feature struct {
	Type    string `json:"type,omitempty" yaml:"type,omitempty"`
	Title   string `json:"title,omitempty" yaml:"title,omitempty"`
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Token is a pagination cursor stored in the tree
type Token struct {
	NextPageToken string `json:"next_page_token" yaml:"next_page_token"`
}

// Payload is the content keyed by a content id. Data carries the raw bytes
// of shared state, semantic data and session set payloads.
type Payload struct {
	Kind    PayloadKind `json:"kind" yaml:"kind"`
	Feature *Feature    `json:"feature,omitempty" yaml:"feature,omitempty"`
	Token   *Token      `json:"token,omitempty" yaml:"token,omitempty"`
	Data    []byte      `json:"data,omitempty" yaml:"data,omitempty"`
}

// DataOperation is one entry of a mutation batch: a structural operation
// paired with the payload it introduces.
type DataOperation struct {
	Structure *Operation `json:"structure,omitempty" yaml:"structure,omitempty"`
	Payload   *Payload   `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// PayloadWithID is a payload returned from a batched lookup
type PayloadWithID struct {
	ContentID string
	Payload   Payload
}

// SessionRecord is the persisted part of a session
type SessionRecord struct {
	Token        string    `json:"token" yaml:"token"`
	LastAccessed time.Time `json:"last_accessed" yaml:"last_accessed"`
}

// StreamToken identifies a pagination point within a session
type StreamToken struct {
	ContentID       string `json:"content_id" yaml:"content_id"`
	ParentContentID string `json:"parent_content_id,omitempty" yaml:"parent_content_id,omitempty"`
	NextPageToken   string `json:"next_page_token,omitempty" yaml:"next_page_token,omitempty"`
}

// MutationContext describes why a mutation batch was produced
type MutationContext struct {
	ContinuationToken   *StreamToken `json:"continuation_token,omitempty" yaml:"continuation_token,omitempty"`
	RequestingSessionID string       `json:"requesting_session_id,omitempty" yaml:"requesting_session_id,omitempty"`
	UserInitiated       bool         `json:"user_initiated,omitempty" yaml:"user_initiated,omitempty"`
}

func (m *MutationContext) continuationToken() *StreamToken {
	if m == nil {
		return nil
	}
	return m.ContinuationToken
}

func (m *MutationContext) requestingSessionID() string {
	if m == nil {
		return ""
	}
	return m.RequestingSessionID
}

func (m *MutationContext) userInitiated() bool {
	return m != nil && m.UserInitiated
}

// Result is the outcome of producing a mutation batch: either the batch or
// the error that prevented it.
type Result struct {
	Operations []DataOperation
	Err        error
}

// Success wraps a batch in a successful Result
func Success(ops ...DataOperation) Result {
	return Result{Operations: ops}
}

// Failure wraps an error in a failed Result
func Failure(err error) Result {
	return Result{Err: err}
}

// IsSuccess reports whether the result carries a batch
func (r Result) IsSuccess() bool {
	return r.Err == nil
}

// AppendFeature builds a DataOperation appending a feature under parent
func AppendFeature(contentID, parentContentID string, feature Feature) DataOperation {
	op := NewAppend(contentID, parentContentID)
	return DataOperation{Structure: &op, Payload: &Payload{Kind: PayloadFeature, Feature: &feature}}
}

// AppendToken builds a DataOperation appending a pagination token under parent
func AppendToken(contentID, parentContentID, nextPageToken string) DataOperation {
	op := NewAppend(contentID, parentContentID)
	return DataOperation{Structure: &op, Payload: &Payload{Kind: PayloadToken, Token: &Token{NextPageToken: nextPageToken}}}
}

// RemoveContent builds a DataOperation removing contentID
func RemoveContent(contentID, parentContentID string) DataOperation {
	op := NewRemove(contentID, parentContentID)
	return DataOperation{Structure: &op}
}

// ClearHead builds a DataOperation clearing HEAD
func ClearHead() DataOperation {
	op := NewClearAll()
	return DataOperation{Structure: &op}
}
