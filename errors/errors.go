package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents a transfer error with context about the operation that failed.
// It wraps the underlying storage or file system error together with the
// classification the engine decided on and, when cleanup also failed, the
// secondary cleanup error.
type Error struct {
	// Op is the operation that failed (e.g., "upload", "uploadPart", "merge")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the object key (if applicable)
	Key string

	// Part is the 1-based part number (0 when the error is not tied to a part)
	Part int

	// Kind classifies the failure
	Kind Kind

	// Err is the primary error
	Err error

	// Cleanup is the error raised while aborting or deleting temporary artifacts
	Cleanup error

	// Listener holds errors returned by synchronous listeners while the
	// transfer failed
	Listener error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("transfer.")
	b.WriteString(e.Op)

	switch {
	case e.Bucket != "" && e.Key != "":
		fmt.Fprintf(&b, " %s/%s", e.Bucket, e.Key)
	case e.Bucket != "":
		fmt.Fprintf(&b, " bucket %s", e.Bucket)
	case e.Key != "":
		fmt.Fprintf(&b, " object %s", e.Key)
	}
	if e.Part > 0 {
		fmt.Fprintf(&b, " part %d", e.Part)
	}

	fmt.Fprintf(&b, ": %v", e.Err)
	if e.Cleanup != nil {
		fmt.Fprintf(&b, " (cleanup failed: %v)", e.Cleanup)
	}
	if e.Listener != nil {
		fmt.Fprintf(&b, " (listener failed: %v)", e.Listener)
	}
	return b.String()
}

// Unwrap exposes the primary, cleanup and listener errors to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := []error{e.Err}
	if e.Cleanup != nil {
		errs = append(errs, e.Cleanup)
	}
	if e.Listener != nil {
		errs = append(errs, e.Listener)
	}
	return errs
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithPart adds part context to an existing error.
func (e *Error) WithPart(part int) *Error {
	e.Part = part
	return e
}

// WithKind overrides the classification.
func (e *Error) WithKind(kind Kind) *Error {
	e.Kind = kind
	return e
}

// WithCleanup attaches a cleanup error. A nil error leaves the error unchanged.
func (e *Error) WithCleanup(err error) *Error {
	if err != nil {
		e.Cleanup = err
	}
	return e
}

// WithListener attaches a listener error. A nil error leaves the error unchanged.
func (e *Error) WithListener(err error) *Error {
	if err != nil {
		e.Listener = err
	}
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
// The kind is derived from err with Classify.
func NewError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: Classify(err),
		Err:  err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return NewError(op, err).WithBucket(bucket).WithKey(key)
}

// Sentinel errors for common transfer failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("transfer: invalid input")

	// ErrCanceled indicates that the transfer was canceled by the caller
	ErrCanceled = errors.New("transfer: canceled")

	// ErrPaused indicates that the transfer was paused by the caller
	ErrPaused = errors.New("transfer: paused")

	// ErrClosed indicates that the manager has been closed
	ErrClosed = errors.New("transfer: manager closed")

	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("transfer: object not found")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("transfer: access denied")

	// ErrTooManyParts indicates that a streamed source exceeded the maximum part count
	ErrTooManyParts = errors.New("transfer: too many parts")

	// ErrSizeMismatch indicates that a source or range returned an unexpected number of bytes
	ErrSizeMismatch = errors.New("transfer: size mismatch")
)

// KindOf returns the classification of err.
func KindOf(err error) Kind {
	return Classify(err)
}

// IsCanceled checks if an error indicates that the transfer was canceled.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsPaused checks if an error indicates that the transfer was paused.
func IsPaused(err error) bool {
	return errors.Is(err, ErrPaused)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsObjectNotFound checks if an error indicates that an object was not found.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || KindOf(err) == KindNotFound
}
