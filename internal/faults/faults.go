// Package faults defines the error taxonomy shared by every component.
// Kinds classify how an error is recovered, not where it happened.
package faults

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	// Config errors abort startup.
	Config Kind = "CONFIG"
	// Transport covers network, subprocess, and serialization failures
	// against an external collaborator. Recovered locally (fallback,
	// reconnect, backend switch).
	Transport Kind = "TRANSPORT"
	// Application means the collaborator returned a documented failure.
	Application Kind = "APPLICATION"
	// Policy means an internal rule refused the action.
	Policy Kind = "POLICY"
	// Cancelled is user- or deadline-initiated; never fatal.
	Cancelled Kind = "CANCELLED"
	// Internal is an invariant violation or unhandled case.
	Internal Kind = "INTERNAL"
)

// Error carries a kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a leaf error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a leaf error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err returns nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf classifies any error. Context cancellation and deadline expiry map
// to Cancelled regardless of wrapping; unclassified errors are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
