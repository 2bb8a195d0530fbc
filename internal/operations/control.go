package operations

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Deps are the manager owned resources a transfer runs on.
type Deps struct {
	Store      store.ObjectStore
	Pool       *pool.Pool
	Buffers    *pool.BufferPool
	Limiter    *rate.Limiter // nil disables request rate limiting
	Metrics    *metrics.Collector
	Logger     *slog.Logger
	Filesystem billy.Filesystem
}

// Settings is the resolved configuration of one transfer.
type Settings struct {
	PartSize    int64
	Concurrency int
	Limits      transfertypes.PartLimits
	ContentType string
	Metadata    map[string]string
	ResumeToken *transfertypes.ResumeToken
	ObjectSize  int64 // downloads only, 0 when unknown

	// OnTerminal runs once, right before the transfer reaches its terminal state
	OnTerminal func()
}

// Hooks are the direction specific steps Control drives.
type Hooks struct {
	// Finish runs the finishing operation once every part succeeded
	Finish func(ctx context.Context) (*transfertypes.Result, error)

	// Cleanup undoes remote or local side effects after the transfer stopped.
	// It returns a resume token when the cause is a pause and the transfer
	// can be continued.
	Cleanup func(ctx context.Context, cause error) (*transfertypes.ResumeToken, error)

	// Release frees per-transfer resources
	Release func()
}

// Control drives the shared part of a transfer lifecycle.
//
// Network calls use a context detached from the caller's: cancellation is
// cooperative, so a canceled caller context stops the transfer but never
// interrupts a request that already started. Waits that have not issued a
// request yet (concurrency slots, rate limiter) observe the stop context.
type Control struct {
	op       string
	deps     Deps
	settings Settings
	hooks    Hooks

	tracker *progress.Tracker
	events  *progress.Dispatcher
	ledger  *multipart.Ledger
	slots   *semaphore.Weighted

	callerCtx context.Context
	netCtx    context.Context
	stopCtx   context.Context
	stopFn    context.CancelFunc
	unwatch   func() bool

	mu           sync.Mutex
	token        *transfertypes.ResumeToken
	listenerErrs []error // sync listener errors raised on the failure path
}

// PartTask transfers one part and returns its result. elapsed is zero when
// no network call was issued.
type PartTask func() (r multipart.Result, elapsed time.Duration)

// NewControl creates the lifecycle control of one transfer. op names the
// transfer in errors and logs ("upload" or "download").
func NewControl(
	ctx context.Context,
	op string,
	deps Deps,
	settings Settings,
	tracker *progress.Tracker,
	events *progress.Dispatcher,
	hooks Hooks,
) *Control {
	concurrency := settings.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	stopCtx, stopFn := context.WithCancel(context.Background())

	return &Control{
		op:        op,
		deps:      deps,
		settings:  settings,
		hooks:     hooks,
		tracker:   tracker,
		events:    events,
		ledger:    multipart.NewLedger(),
		slots:     semaphore.NewWeighted(int64(concurrency)),
		callerCtx: ctx,
		netCtx:    context.WithoutCancel(ctx),
		stopCtx:   stopCtx,
		stopFn:    stopFn,
		unwatch:   func() bool { return false },
	}
}

// Start registers the control step with the ledger and runs it on its own
// goroutine. The step must end with Settle. Canceling the caller's context
// from now on stops the transfer with ErrCanceled.
func (c *Control) Start(step func()) {
	c.ledger.Begin()
	c.unwatch = context.AfterFunc(c.callerCtx, func() {
		c.Stop(fmt.Errorf("%w: %w", errors.ErrCanceled, context.Cause(c.callerCtx)))
	})
	go func() {
		if err := c.recovered(c.op, 0, step); err != nil {
			c.Settle(err)
		}
	}()
}

// Deps returns the resources of the transfer.
func (c *Control) Deps() Deps { return c.deps }

// Settings returns the resolved transfer configuration.
func (c *Control) Settings() Settings { return c.settings }

// Tracker returns the progress tracker.
func (c *Control) Tracker() *progress.Tracker { return c.tracker }

// Ledger returns the part ledger.
func (c *Control) Ledger() *multipart.Ledger { return c.ledger }

// NetContext returns the context for network calls. It is never canceled by
// a stop.
func (c *Control) NetContext() context.Context { return c.netCtx }

// ResumeToken returns the token produced by a pause, if any.
func (c *Control) ResumeToken() *transfertypes.ResumeToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Stop stops the transfer with cause. It is a no-op once the transfer
// stopped, or once the finishing operation started.
func (c *Control) Stop(cause error) {
	d := c.ledger.Stop(cause)
	if c.ledger.Stopped() {
		c.stopFn()
	}
	c.Act(d)
}

// Settle ends a control step started with Start or Ledger().Begin.
func (c *Control) Settle(err error) {
	if err != nil {
		c.stopFn()
	}
	c.Act(c.ledger.Settle(err))
}

// Seal fixes the number of parts.
func (c *Control) Seal(parts int) {
	c.Act(c.ledger.Seal(parts))
}

// Act runs the terminal step a ledger decision calls for. A panicking
// finish hands over to cleanup; a panicking cleanup still ends the transfer.
func (c *Control) Act(d multipart.Decision) {
	switch d {
	case multipart.Finish:
		c.Submit(func() {
			if err := c.recovered(c.op, 0, c.finish); err != nil && !c.tracker.State().Terminal() {
				c.Act(c.ledger.FinishFailed(err))
			}
		})
	case multipart.Cleanup:
		c.Submit(func() {
			if err := c.recovered(c.op, 0, c.cleanup); err != nil && !c.tracker.State().Terminal() {
				cause := errors.NewObjectError(c.op, c.tracker.Bucket(), c.tracker.Key(), c.ledger.Cause()).
					WithCleanup(err)
				c.terminate(nil, cause, outcomeOf(cause.Kind))
			}
		})
	}
}

// Submit runs task on the shared pool. Terminal steps must run even if the
// pool was shut down underneath a transfer, so they fall back to a goroutine.
func (c *Control) Submit(task pool.Task) {
	if err := c.deps.Pool.Submit(task); err != nil {
		go task()
	}
}

// SubmitPart runs a part task registered with BeginPart on the shared pool
// and reports its result. A panicking task reports an internal failure.
func (c *Control) SubmitPart(part planner.Part, task PartTask) {
	c.Submit(func() {
		var (
			r       multipart.Result
			elapsed time.Duration
		)
		if err := c.recovered(c.op, part.Number, func() { r, elapsed = task() }); err != nil {
			r, elapsed = multipart.Failure(part, err), 0
		}
		c.Complete(r, elapsed)
	})
}

// BeginPart registers a part with the ledger and reserves a concurrency
// slot. It returns false when the transfer stopped; no slot is held then.
func (c *Control) BeginPart() bool {
	if err := c.slots.Acquire(c.stopCtx, 1); err != nil {
		return false
	}
	if !c.ledger.Begin() {
		c.slots.Release(1)
		return false
	}
	c.tracker.Transition(transfertypes.StatePartsInFlight)
	return true
}

// Withdraw gives back a registration from BeginPart whose part turned out
// not to need a transfer.
func (c *Control) Withdraw() {
	c.slots.Release(1)
	c.Act(c.ledger.Settle(nil))
}

// Ready is awaited by a part task right before its network call. A non-nil
// error means the part must report a failure without issuing the call.
func (c *Control) Ready() error {
	if c.ledger.Stopped() {
		return errors.ErrCanceled
	}
	if c.deps.Limiter != nil {
		if err := c.deps.Limiter.Wait(c.stopCtx); err != nil {
			if c.ledger.Stopped() {
				return errors.ErrCanceled
			}
			return errors.NewError("rateLimit", err).WithKind(errors.KindInternal)
		}
	}
	return nil
}

// Complete reports a part result, releases its concurrency slot and acts on
// the resulting decision. elapsed is zero when no network call was issued.
func (c *Control) Complete(r multipart.Result, elapsed time.Duration) {
	direction := string(c.tracker.Direction())
	ack := c.ledger.Report(r)

	var settleErr error
	switch {
	case ack.Accepted:
		c.tracker.AddProgress(r.Part.Length)
		c.deps.Metrics.PartDone(direction, metrics.StatusSuccess, r.Part.Length, elapsed)
		if err := c.publish(transfertypes.EventPartCompleted, r.Part, nil); err != nil {
			settleErr = errors.NewObjectError(c.op, c.tracker.Bucket(), c.tracker.Key(), err).
				WithPart(r.Part.Number).
				WithKind(errors.KindListener)
		}
	case ack.Cause:
		c.stopFn()
		c.deps.Metrics.PartDone(direction, metrics.StatusFailure, r.Part.Length, elapsed)
		c.logger().WarnContext(c.netCtx, "part failed",
			"transfer_id", c.tracker.ID(),
			"bucket", c.tracker.Bucket(),
			"key", c.tracker.Key(),
			"part", r.Part.Number,
			"error", r.Err)
		if err := c.publish(transfertypes.EventPartFailed, r.Part, r.Err); err != nil {
			c.listenerFailed(err)
		}
	case r.OK():
		c.deps.Metrics.PartDone(direction, metrics.StatusDiscarded, r.Part.Length, elapsed)
	default:
		c.deps.Metrics.PartDone(direction, metrics.StatusCanceled, r.Part.Length, elapsed)
	}

	// the slot is freed only after the result was accounted for, so a part
	// never starts before the result of the part it replaces was recorded
	c.slots.Release(1)

	if settleErr != nil {
		c.stopFn()
	}
	c.Act(c.ledger.Settle(settleErr))
}

// Started publishes EventTransferStarted. A synchronous listener error stops
// the transfer.
func (c *Control) Started() error {
	if err := c.publish(transfertypes.EventTransferStarted, planner.Part{}, nil); err != nil {
		return errors.NewObjectError(c.op, c.tracker.Bucket(), c.tracker.Key(), err).
			WithKind(errors.KindListener)
	}
	return nil
}

func (c *Control) finish() {
	c.tracker.Transition(transfertypes.StateCompleting)

	result, err := c.hooks.Finish(c.netCtx)
	if err != nil {
		c.logger().ErrorContext(c.netCtx, "finishing transfer failed",
			"transfer_id", c.tracker.ID(),
			"bucket", c.tracker.Bucket(),
			"key", c.tracker.Key(),
			"error", err)
		c.Act(c.ledger.FinishFailed(err))
		return
	}

	c.fill(result)
	snapshot := c.tracker.Snapshot()
	snapshot.State = transfertypes.StateDone
	if err := c.events.Publish(c.event(transfertypes.EventTransferCompleted, planner.Part{}, nil, snapshot)); err != nil {
		result.ListenerErr = err
	}

	c.terminate(result, nil, metrics.OutcomeDone)
	c.logger().InfoContext(c.netCtx, "transfer completed",
		"transfer_id", result.ID,
		"direction", result.Direction,
		"bucket", result.Bucket,
		"key", result.Key,
		"size", result.Size,
		"parts", result.Parts,
		"duration", result.Duration)
}

func (c *Control) cleanup() {
	c.tracker.Transition(transfertypes.StateAborting)

	cause := c.ledger.Cause()
	token, cleanupErr := c.hooks.Cleanup(c.netCtx, cause)
	if token != nil {
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
	}

	err := errors.NewObjectError(c.op, c.tracker.Bucket(), c.tracker.Key(), cause).
		WithCleanup(cleanupErr)

	snapshot := c.tracker.Snapshot()
	snapshot.State = transfertypes.StateFailed
	if lerr := c.events.Publish(c.event(transfertypes.EventTransferFailed, planner.Part{}, err, snapshot)); lerr != nil {
		c.listenerFailed(lerr)
	}

	// listeners may still hold err, so the listener errors go on a copy
	final := *err
	c.mu.Lock()
	final.WithListener(stderrors.Join(c.listenerErrs...))
	c.mu.Unlock()
	err = &final

	c.terminate(nil, err, outcomeOf(err.Kind))
	c.logger().InfoContext(c.netCtx, "transfer stopped",
		"transfer_id", c.tracker.ID(),
		"bucket", c.tracker.Bucket(),
		"key", c.tracker.Key(),
		"kind", err.Kind,
		"error", err)
}

func (c *Control) terminate(result *transfertypes.Result, err error, outcome string) {
	c.unwatch()
	c.stopFn()
	if c.hooks.Release != nil {
		c.hooks.Release()
	}
	if c.settings.OnTerminal != nil {
		c.settings.OnTerminal()
	}
	c.tracker.Finish(result, err)
	c.events.Close()
	c.deps.Metrics.TransferDone(string(c.tracker.Direction()), outcome)
}

// listenerFailed records a sync listener error raised while the transfer
// fails. It is attached to the terminal error.
func (c *Control) listenerFailed(err error) {
	c.mu.Lock()
	c.listenerErrs = append(c.listenerErrs, err)
	c.mu.Unlock()
}

// recovered runs fn and turns a panic into an internal error.
func (c *Control) recovered(op string, part int, fn func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			e := errors.NewObjectError(op, c.tracker.Bucket(), c.tracker.Key(), fmt.Errorf("panic: %v", v)).
				WithPart(part).
				WithKind(errors.KindInternal)
			c.logger().ErrorContext(c.netCtx, "transfer step panicked",
				"transfer_id", c.tracker.ID(),
				"part", part,
				"error", e,
				"stack", string(debug.Stack()))
			err = e
		}
	}()
	fn()
	return nil
}

func outcomeOf(kind errors.Kind) string {
	switch kind {
	case errors.KindCanceled:
		return metrics.OutcomeCanceled
	case errors.KindPaused:
		return metrics.OutcomePaused
	}
	return metrics.OutcomeFailed
}

func (c *Control) fill(result *transfertypes.Result) {
	result.ID = c.tracker.ID()
	result.Direction = c.tracker.Direction()
	result.Bucket = c.tracker.Bucket()
	result.Key = c.tracker.Key()
}

func (c *Control) publish(typ transfertypes.EventType, part planner.Part, err error) error {
	return c.events.Publish(c.event(typ, part, err, c.tracker.Snapshot()))
}

func (c *Control) event(
	typ transfertypes.EventType,
	part planner.Part,
	err error,
	snapshot transfertypes.Snapshot,
) transfertypes.Event {
	return transfertypes.Event{
		Type:       typ,
		TransferID: c.tracker.ID(),
		Direction:  c.tracker.Direction(),
		Bucket:     c.tracker.Bucket(),
		Key:        c.tracker.Key(),
		Part:       part.Number,
		Bytes:      part.Length,
		Progress:   snapshot,
		Err:        err,
	}
}

func (c *Control) logger() *slog.Logger {
	if c.deps.Logger != nil {
		return c.deps.Logger
	}
	return slog.New(slog.DiscardHandler)
}
