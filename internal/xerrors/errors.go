// Package xerrors defines the error taxonomy shared by every exastash
// component: callers distinguish NotFound/InvalidInput/Integrity/Transient
// from unclassified (fatal) errors with errors.As, through the Is*
// predicates below.
package xerrors

import (
	"errors"
	"fmt"
)

// NotFoundError means the requested row, dirent, file or pile does not exist.
type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What }

// NewNotFound builds a NotFoundError with a formatted message.
func NewNotFound(format string, args ...interface{}) error {
	return &NotFoundError{What: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err (or something it wraps) is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// InvalidInputError means the caller supplied a malformed argument (a bad
// path component, an out-of-range natural number, an unparseable config).
type InvalidInputError struct {
	What string
}

func (e *InvalidInputError) Error() string { return e.What }

func NewInvalidInput(format string, args ...interface{}) error {
	return &InvalidInputError{What: fmt.Sprintf(format, args...)}
}

func IsInvalidInput(err error) bool {
	var ie *InvalidInputError
	return errors.As(err, &ie)
}

// IntegrityError means a verified digest or byte count did not match what
// the metadata store recorded. It is never retried or recovered from: the
// caller must surface it untouched.
type IntegrityError struct {
	What string
}

func (e *IntegrityError) Error() string { return "integrity check failed: " + e.What }

func NewIntegrity(format string, args ...interface{}) error {
	return &IntegrityError{What: fmt.Sprintf(format, args...)}
}

func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// TransientError wraps an error that is expected to clear up on retry, such
// as a single Google Drive token or backend being temporarily unavailable.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func NewTransient(err error) error {
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
