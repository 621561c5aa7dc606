// Package taskerr defines the closed error taxonomy used by the tree engine.
//
// Every failure that crosses a node boundary is an *Error with a Kind taken
// from a fixed enumeration. Programming-contract violations (cycles, duplicate
// identifiers) and usage errors are plain sentinel errors instead, because they
// are never reported as data.
package taskerr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCycle is returned when an identifier appears in its own ancestry.
	ErrCycle = errors.New("cyclic identifier graph")
	// ErrDuplicate is returned when an identifier is reached from two lineages.
	ErrDuplicate = errors.New("identifier visited twice")
	// ErrRunInProgress rejects a run for a root that is already running.
	ErrRunInProgress = errors.New("run already in progress for root")
	// ErrBudgetExhausted is wrapped by the Fatal record produced once the
	// call budget of a run is spent.
	ErrBudgetExhausted = errors.New("call budget exhausted")
)

// Kind classifies an Error.
type Kind int

const (
	// Fatal is terminal and aborts the whole run.
	Fatal Kind = iota + 1
	// Transient is node-local and handled according to the transient policy.
	Transient
	// Cancelled is an internal signal; it is never reported to callers as a
	// failure record.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Transient:
		return "transient"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind by name in JSON and logs.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the record of a failure at a single identifier.
type Error struct {
	Kind    Kind   `json:"kind"`
	ID      string `json:"id"`
	Message string `json:"message"`
	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.ID == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error at %q: %s", e.Kind, e.ID, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewFatal creates a Fatal record.
func NewFatal(id, message string, cause error) *Error {
	return &Error{Kind: Fatal, ID: id, Message: message, Err: cause}
}

// NewTransient creates a Transient record.
func NewTransient(id, message string, cause error) *Error {
	return &Error{Kind: Transient, ID: id, Message: message, Err: cause}
}

// NewCancelled creates a Cancelled record.
func NewCancelled(id string, cause error) *Error {
	return &Error{Kind: Cancelled, ID: id, Message: "cancelled", Err: cause}
}

// Classify maps an arbitrary error returned while processing id onto the
// taxonomy. Typed records keep their kind (the ID is filled in when missing),
// context cancellation becomes Cancelled, a deadline becomes Transient, and any
// other error is treated as Transient.
func Classify(id string, err error) *Error {
	if err == nil {
		return nil
	}
	var rec *Error
	if errors.As(err, &rec) {
		if rec.ID == "" {
			cp := *rec
			cp.ID = id
			return &cp
		}
		return rec
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewCancelled(id, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransient(id, "call timed out", err)
	default:
		return NewTransient(id, err.Error(), err)
	}
}

// IsKind reports whether err is a record of the given kind.
func IsKind(err error, kind Kind) bool {
	var rec *Error
	if !errors.As(err, &rec) {
		return false
	}
	return rec.Kind == kind
}
