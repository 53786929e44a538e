package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for propagation and HTTP mapping.
type ErrorKind string

const (
	ErrKindInputInvalid       ErrorKind = "input_invalid"
	ErrKindAccessDenied       ErrorKind = "access_denied"
	ErrKindNotFound           ErrorKind = "not_found"
	ErrKindTransient          ErrorKind = "transient"
	ErrKindBackendUnavailable ErrorKind = "backend_unavailable"
	ErrKindComponentFailure   ErrorKind = "component_failure"
	ErrKindCancelled          ErrorKind = "cancelled"
)

// KindError attaches an ErrorKind to an underlying error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *KindError) Unwrap() error { return e.Err }

// WrapKind wraps err with a kind. Returns nil if err is nil.
func WrapKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// Errorf builds a new kinded error from a format string.
func Errorf(kind ErrorKind, format string, args ...any) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, walking wrapped errors.
// Unclassified errors report ComponentFailure.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, ErrAccessDenied) {
		return ErrKindAccessDenied
	}
	if errors.Is(err, ErrNotFound) {
		return ErrKindNotFound
	}
	return ErrKindComponentFailure
}

// IsRetryable reports whether a failure with this kind may be retried.
func (k ErrorKind) IsRetryable() bool {
	return k == ErrKindTransient
}

// Sentinel errors shared across packages.
var (
	// ErrAccessDenied marks a case-isolation or permission violation.
	// These are fatal for the offending request and never degrade into
	// partial success.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound marks an unknown case, job, document, or fact.
	ErrNotFound = errors.New("not found")
)
