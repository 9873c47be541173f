// Package taskerr classifies task failures so that callers can branch on the
// failure category while the message keeps the full context chain.
package taskerr

import (
	"errors"
	"fmt"
)

// Kind is the failure category.
type Kind string

const (
	KindConnection    Kind = "connection"    // lock unavailable or connection closed
	KindPrepare       Kind = "prepare"       // malformed SQL
	KindExecution     Kind = "execution"     // engine-reported runtime failure
	KindConversion    Kind = "conversion"    // schema or array construction
	KindIO            Kind = "io"            // file missing, unreadable, metadata failure
	KindSerialization Kind = "serialization" // preview encoding
	KindCancelled     Kind = "cancelled"     // cooperative cancel observed at a safe point
	KindInvalid       Kind = "invalid"       // malformed command
	KindUnknown       Kind = "unknown"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with kind and op. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
