// Package multipart tracks the parts of one multipart transfer and decides,
// exactly once, whether the transfer finishes or cleans up.
package multipart

import (
	"sort"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Result is the outcome of one part task: either a completion token or an error.
type Result struct {
	Part  planner.Part
	Token string
	Err   error
}

// Success builds a successful part result.
func Success(part planner.Part, token string) Result {
	return Result{Part: part, Token: token}
}

// Failure builds a failed part result.
func Failure(part planner.Part, err error) Result {
	return Result{Part: part, Err: err}
}

// OK reports whether the part succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Decision is what the orchestrator must do after a ledger update.
type Decision int

const (
	// Continue means no terminal action is due yet
	Continue Decision = iota

	// Finish means every part succeeded and the finishing operation must run
	Finish

	// Cleanup means the transfer stopped and cleanup must run
	Cleanup
)

// Ack describes how the ledger treated a reported result.
type Ack struct {
	// Accepted is true for a success recorded while the transfer was running
	Accepted bool

	// Cause is true when this failure stopped the transfer
	Cause bool
}

type stage int

const (
	stageOpen stage = iota
	stageFinishing
	stageCleaning
)

// Ledger is the per-transfer part bookkeeping. Every method is a single
// critical section, so the finish and cleanup decisions are each returned at
// most once no matter how many goroutines report concurrently.
//
// Work is bracketed by Begin and Settle. Between the two a part's result is
// recorded with Report; a control step (initiate, head) only uses Begin and
// Settle. Decisions are only taken once no bracketed work is outstanding.
type Ledger struct {
	mu          sync.Mutex
	expected    int
	outstanding int
	completed   map[int]transfertypes.CompletedPart
	stopped     bool
	cause       error
	stage       stage
}

// NewLedger creates an empty ledger. The number of parts is unknown until Seal.
func NewLedger() *Ledger {
	return &Ledger{
		expected:  -1,
		completed: make(map[int]transfertypes.CompletedPart),
	}
}

// Restore marks parts as already completed, e.g. from a resume token.
func (l *Ledger) Restore(parts []transfertypes.CompletedPart) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range parts {
		l.completed[p.Number] = p
	}
}

// Has reports whether part n already completed.
func (l *Ledger) Has(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.completed[n]
	return ok
}

// Begin registers outstanding work. It returns false once the transfer
// stopped or a terminal decision was taken; the caller must not start the work.
func (l *Ledger) Begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped || l.stage != stageOpen {
		return false
	}
	l.outstanding++
	return true
}

// Report records a part result. Successes that arrive after the transfer
// stopped are discarded. The first failure stops the transfer.
func (l *Ledger) Report(r Result) Ack {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r.Err != nil {
		if l.stopped {
			return Ack{}
		}
		l.stopped = true
		l.cause = r.Err
		return Ack{Cause: true}
	}

	if l.stopped || l.stage != stageOpen {
		return Ack{}
	}
	if _, dup := l.completed[r.Part.Number]; dup {
		return Ack{}
	}
	l.completed[r.Part.Number] = transfertypes.CompletedPart{
		Number: r.Part.Number,
		Size:   r.Part.Length,
		Token:  r.Token,
	}
	return Ack{Accepted: true}
}

// Settle ends work registered with Begin. A non-nil err stops the transfer
// if nothing else did first.
func (l *Ledger) Settle(err error) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil && !l.stopped {
		l.stopped = true
		l.cause = err
	}
	if l.outstanding > 0 {
		l.outstanding--
	}
	return l.decide()
}

// Seal fixes the number of parts once every part was handed out.
func (l *Ledger) Seal(parts int) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.expected = parts
	return l.decide()
}

// Stop stops the transfer with cause. It has no effect once the finishing
// operation started or the transfer already stopped.
func (l *Ledger) Stop(cause error) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stage != stageOpen || l.stopped {
		return Continue
	}
	l.stopped = true
	l.cause = cause
	return l.decide()
}

// FinishFailed records that the finishing operation failed and hands the
// transfer over to cleanup.
func (l *Ledger) FinishFailed(err error) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stage != stageFinishing {
		return Continue
	}
	l.stopped = true
	l.cause = err
	l.stage = stageCleaning
	return Cleanup
}

// Stopped reports whether the transfer stopped.
func (l *Ledger) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// Cause returns the error that stopped the transfer.
func (l *Ledger) Cause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cause
}

// Completed returns the completed parts in ascending part number order.
func (l *Ledger) Completed() []transfertypes.CompletedPart {
	l.mu.Lock()
	defer l.mu.Unlock()

	parts := make([]transfertypes.CompletedPart, 0, len(l.completed))
	for _, p := range l.completed {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts
}

// CompletedBytes sums the sizes of completed parts.
func (l *Ledger) CompletedBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for _, p := range l.completed {
		n += p.Size
	}
	return n
}

// decide must be called with l.mu held.
func (l *Ledger) decide() Decision {
	if l.stage != stageOpen || l.outstanding > 0 {
		return Continue
	}
	if l.stopped {
		l.stage = stageCleaning
		return Cleanup
	}
	if l.expected >= 0 && len(l.completed) == l.expected {
		l.stage = stageFinishing
		return Finish
	}
	return Continue
}
