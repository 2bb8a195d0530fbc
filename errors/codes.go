// Package errors provides the error taxonomy for transfer operations.
// Every terminal transfer error carries a Kind so callers can branch on the
// failure class without inspecting storage-service specific error types.
package errors

// Kind classifies a terminal transfer error.
// Kinds are string-based for debuggability and natural JSON serialization.
type Kind string

const (
	// Validation errors.

	// KindInvalidInput indicates the request or its configuration was rejected before any work started.
	KindInvalidInput Kind = "INVALID_INPUT"

	// Caller decisions.

	// KindCanceled indicates the caller canceled the transfer.
	KindCanceled Kind = "CANCELED"

	// KindPaused indicates the caller paused the transfer and received a resume token.
	KindPaused Kind = "PAUSED"

	// Remote errors.

	// KindNotFound indicates the object, bucket or multipart upload does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindAccessDenied indicates the credentials lack permission for the operation.
	KindAccessDenied Kind = "FORBIDDEN"

	// KindThrottled indicates the storage service kept rejecting requests for rate reasons.
	KindThrottled Kind = "RATE_LIMIT_EXCEEDED"

	// KindUnavailable indicates the storage service reported an internal or unavailable state.
	KindUnavailable Kind = "SERVICE_UNAVAILABLE"

	// Infrastructure errors.

	// KindNetwork indicates a network operation failed.
	KindNetwork Kind = "NETWORK_ERROR"

	// KindTimeout indicates an operation exceeded its time limit.
	KindTimeout Kind = "TIMEOUT"

	// KindStorage indicates a local file system operation failed.
	KindStorage Kind = "STORAGE_ERROR"

	// Engine errors.

	// KindListener indicates a synchronous progress listener returned an error.
	KindListener Kind = "LISTENER_ERROR"

	// KindInternal indicates an internal invariant was violated.
	KindInternal Kind = "INTERNAL_ERROR"

	// KindUnknown indicates an unclassified error.
	KindUnknown Kind = "UNKNOWN"
)

// Transient reports whether the kind describes a condition that a per-request
// retry policy would normally absorb. By the time such an error reaches the
// transfer engine that budget has been spent, so it is still terminal.
func (k Kind) Transient() bool {
	switch k {
	case KindNetwork, KindTimeout, KindThrottled, KindUnavailable:
		return true
	default:
		return false
	}
}

// String returns the kind as a string.
func (k Kind) String() string {
	return string(k)
}
