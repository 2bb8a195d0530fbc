// Package transfertypes provides shared type definitions for the transfer module.
package transfertypes

import (
	"fmt"
	"time"
)

// Direction tells whether a transfer moves bytes to or from the object store.
type Direction string

const (
	// DirectionUpload moves a local source into the object store
	DirectionUpload Direction = "upload"

	// DirectionDownload moves an object into a local file
	DirectionDownload Direction = "download"
)

// State is the lifecycle state of a single transfer.
//
// States only move forward: Pending, Initiated, PartsInFlight, then either
// Completing and Done, or Aborting and Failed. Done and Failed are terminal.
type State int32

const (
	// StatePending is the state before any remote work was issued
	StatePending State = iota

	// StateInitiated is entered once the multipart upload exists (or the download was planned)
	StateInitiated

	// StatePartsInFlight is entered when the first part is submitted
	StatePartsInFlight

	// StateCompleting is entered when every part succeeded and the finishing operation runs
	StateCompleting

	// StateAborting is entered on the first failure, cancel or pause
	StateAborting

	// StateDone is the terminal success state
	StateDone

	// StateFailed is the terminal failure state, including cancel and pause
	StateFailed
)

var stateNames = map[State]string{
	StatePending:       "PENDING",
	StateInitiated:     "INITIATED",
	StatePartsInFlight: "PARTS_IN_FLIGHT",
	StateCompleting:    "COMPLETING",
	StateAborting:      "ABORTING",
	StateDone:          "DONE",
	StateFailed:        "FAILED",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether a transfer in state s may move to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() || next <= s {
		return false
	}
	if next == StateDone {
		return s == StateCompleting
	}
	return true
}

// Snapshot is a point-in-time view of a transfer's progress.
type Snapshot struct {
	// BytesTransferred counts bytes of parts that completed successfully
	BytesTransferred int64

	// TotalBytes is the object size, or -1 while it is unknown
	TotalBytes int64

	// State is the current lifecycle state
	State State
}

// Percent returns the completed fraction in the range [0, 100].
// It returns 0 while the total is unknown.
func (s Snapshot) Percent() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	p := float64(s.BytesTransferred) / float64(s.TotalBytes) * 100
	if p > 100 {
		return 100
	}
	return p
}

// Result contains information about a finished transfer.
type Result struct {
	// ID is the transfer identifier
	ID string

	// Direction is upload or download
	Direction Direction

	// Bucket and Key identify the remote object
	Bucket string
	Key    string

	// Path is the local file for downloads (empty for uploads from a reader)
	Path string

	// Size is the number of bytes moved
	Size int64

	// Parts is the number of parts the object was moved in
	Parts int

	// ETag is the entity tag of the remote object
	ETag string

	// VersionID is the version of the remote object, if versioning is enabled
	VersionID string

	// Duration is the time from start until the terminal state
	Duration time.Duration

	// ListenerErr is the error returned by a synchronous listener while the
	// terminal event was published
	ListenerErr error

	// CleanupErr is set when leftover temporary artifacts could not be removed
	// after an otherwise successful transfer
	CleanupErr error
}

// PartLimits constrains how an object may be split into parts.
type PartLimits struct {
	// MinPartSize is the smallest part size accepted for a multipart transfer
	MinPartSize int64

	// MaxPartSize is the largest part size the object store accepts
	MaxPartSize int64

	// MaxParts is the maximum number of parts of a single object
	MaxParts int
}

// Default limits of S3 compatible object stores.
const (
	DefaultMinPartSize int64 = 5 * 1024 * 1024
	DefaultMaxPartSize int64 = 5 * 1024 * 1024 * 1024
	DefaultMaxParts          = 10_000
)

// DefaultPartLimits returns the S3 part limits.
func DefaultPartLimits() PartLimits {
	return PartLimits{
		MinPartSize: DefaultMinPartSize,
		MaxPartSize: DefaultMaxPartSize,
		MaxParts:    DefaultMaxParts,
	}
}
