// Package progress holds the observable state of a transfer and fans progress
// events out to listeners.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Tracker is the aggregate state of one transfer. Readers never block writers:
// counters and state are atomics, only the terminal outcome is guarded.
type Tracker struct {
	id        string
	direction transfertypes.Direction
	bucket    string
	key       string
	started   time.Time

	total       atomic.Int64
	transferred atomic.Int64
	state       atomic.Int32

	mu     sync.Mutex
	ended  time.Time
	result *transfertypes.Result
	err    error
	done   chan struct{}
}

// NewTracker creates a tracker in StatePending. total is -1 when unknown.
func NewTracker(id string, direction transfertypes.Direction, bucket, key string, total int64) *Tracker {
	t := &Tracker{
		id:        id,
		direction: direction,
		bucket:    bucket,
		key:       key,
		started:   time.Now(),
		done:      make(chan struct{}),
	}
	t.total.Store(total)
	return t
}

// ID returns the transfer identifier.
func (t *Tracker) ID() string { return t.id }

// Direction returns the transfer direction.
func (t *Tracker) Direction() transfertypes.Direction { return t.direction }

// Bucket returns the bucket of the remote object.
func (t *Tracker) Bucket() string { return t.bucket }

// Key returns the key of the remote object.
func (t *Tracker) Key() string { return t.key }

// Started returns when the transfer was created.
func (t *Tracker) Started() time.Time { return t.started }

// SetTotal records the object size once it becomes known.
func (t *Tracker) SetTotal(total int64) {
	t.total.Store(total)
}

// AddProgress adds n accepted bytes and returns the new total.
// Negative values are ignored so the counter never decreases.
func (t *Tracker) AddProgress(n int64) int64 {
	if n <= 0 || t.State().Terminal() {
		return t.transferred.Load()
	}
	return t.transferred.Add(n)
}

// State returns the current state.
func (t *Tracker) State() transfertypes.State {
	return transfertypes.State(t.state.Load())
}

// Transition moves to next if the state machine allows it.
// Terminal states are only reachable through Finish.
func (t *Tracker) Transition(next transfertypes.State) bool {
	if next.Terminal() {
		return false
	}
	return t.transition(next)
}

func (t *Tracker) transition(next transfertypes.State) bool {
	for {
		cur := t.State()
		if !cur.CanTransition(next) {
			return false
		}
		if t.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

// Snapshot returns the current progress without blocking.
func (t *Tracker) Snapshot() transfertypes.Snapshot {
	return transfertypes.Snapshot{
		BytesTransferred: t.transferred.Load(),
		TotalBytes:       t.total.Load(),
		State:            t.State(),
	}
}

// Finish records the terminal outcome. A nil err means success and moves the
// tracker to StateDone; otherwise it moves to StateFailed. Only the first call
// has an effect.
func (t *Tracker) Finish(result *transfertypes.Result, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.State().Terminal() {
		return false
	}

	if err == nil && !t.transition(transfertypes.StateDone) {
		err = errors.NewError("finish", fmt.Errorf("cannot complete from state %s", t.State())).
			WithKind(errors.KindInternal)
	}
	if err != nil {
		t.transition(transfertypes.StateFailed)
	}

	t.ended = time.Now()
	if result != nil {
		result.Duration = t.ended.Sub(t.started)
	}
	t.result = result
	t.err = err
	close(t.done)
	return true
}

// Done is closed once the transfer reached a terminal state.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the terminal result and error. It must only be called after
// Done is closed.
func (t *Tracker) Outcome() (*transfertypes.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}
