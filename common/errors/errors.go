// Package errors defines the error taxonomy shared by the model lifecycle
// components. Every operational failure maps to exactly one Kind so that
// callers (and the HTTP layer) can react uniformly.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling policy.
type Kind int

const (
	// KindUnknown is the zero value; treated as an internal failure.
	KindUnknown Kind = iota
	// KindNotFound: artifact, baseline or version missing from storage.
	// Surfaced to the caller, never retried automatically.
	KindNotFound
	// KindInvalidInput: missing required features, malformed training data,
	// dataset below minimum sample count. Aborted with no partial effect.
	KindInvalidInput
	// KindDegradedDependency: an optional collaborator (explainer, stats
	// backend) is unavailable. Recovered locally with a reduced result.
	KindDegradedDependency
	// KindTransientInfra: storage or database failure. The operation fails
	// but lifecycle state is left unchanged.
	KindTransientInfra
	// KindInference: the scoring call itself failed. Fatal to the single
	// prediction request; not retried internally.
	KindInference
	// KindConflict: the operation lost to a concurrent one, such as a
	// retrain already holding the single-flight guard.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindDegradedDependency:
		return "degraded_dependency"
	case KindTransientInfra:
		return "transient_infra"
	case KindInference:
		return "inference_failure"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Ef builds a classified error with a formatted message.
func Ef(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is classified KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidInput reports whether err is classified KindInvalidInput.
func IsInvalidInput(err error) bool { return KindOf(err) == KindInvalidInput }

// IsConflict reports whether err is classified KindConflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
