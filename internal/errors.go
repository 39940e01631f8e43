package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a read is attempted before the
	// structure or session cache finished loading.
	ErrNotInitialized = errors.New("not initialized")

	// ErrAlreadyInitialized is returned when a one-shot loader runs twice.
	ErrAlreadyInitialized = errors.New("already initialized")

	// ErrMultipleRoots marks a HEAD log carrying more than one parentless append.
	ErrMultipleRoots = errors.New("multiple roots found")

	// ErrUninitializable marks a HEAD log that cannot be turned into a tree.
	ErrUninitializable = errors.New("head is uninitializable")

	// ErrInvalidOperation marks an operation dropped from a batch.
	ErrInvalidOperation = errors.New("invalid operation")
)

// StoreError represents a failed read or commit against the store
type StoreError struct {
	Op      string // "read", "commit", "remove", "clear"
	Session string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("store error: %s [%s]: %v", e.Op, e.Session, e.Err)
	}
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// InvalidOperationError describes why a single operation was skipped
type InvalidOperationError struct {
	ContentID string
	Reason    string
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("invalid operation [%s]: %s", e.ContentID, e.Reason)
}

func (e *InvalidOperationError) Unwrap() error {
	return ErrInvalidOperation
}

// FeedErrorKind classifies errors reported to an ErrorObserver
type FeedErrorKind int

const (
	NoCardsError FeedErrorKind = iota
	PaginationError
)

func (k FeedErrorKind) String() string {
	switch k {
	case PaginationError:
		return "pagination_error"
	case NoCardsError:
		return "no_cards_error"
	}
	return "unknown"
}

// FeedError is surfaced to observers rather than returned
type FeedError struct {
	Kind  FeedErrorKind
	Token *StreamToken // set for PaginationError
	Cause error
}

func (e *FeedError) Error() string {
	if e.Token != nil {
		return fmt.Sprintf("feed error [%s] token %s: %v", e.Kind, e.Token.ContentID, e.Cause)
	}
	return fmt.Sprintf("feed error [%s]: %v", e.Kind, e.Cause)
}

func (e *FeedError) Unwrap() error {
	return e.Cause
}
