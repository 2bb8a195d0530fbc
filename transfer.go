package transfer

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Transfer is the handle of one running upload or download.
// All methods are safe for concurrent use.
type Transfer struct {
	control *operations.Control
	tracker *progress.Tracker
	events  *progress.Dispatcher
}

func newTransfer(control *operations.Control, s session) *Transfer {
	return &Transfer{control: control, tracker: s.tracker, events: s.events}
}

// ID returns the transfer identifier carried by its events and result.
func (t *Transfer) ID() string { return t.tracker.ID() }

// Direction returns whether this is an upload or a download.
func (t *Transfer) Direction() transfertypes.Direction { return t.tracker.Direction() }

// Bucket returns the bucket of the remote object.
func (t *Transfer) Bucket() string { return t.tracker.Bucket() }

// Key returns the key of the remote object.
func (t *Transfer) Key() string { return t.tracker.Key() }

// Progress returns a snapshot of the transferred bytes and the lifecycle state.
func (t *Transfer) Progress() transfertypes.Snapshot {
	return t.tracker.Snapshot()
}

// Done is closed once the transfer reached DONE or FAILED.
func (t *Transfer) Done() <-chan struct{} {
	return t.tracker.Done()
}

// Wait blocks until the transfer reached a terminal state and returns its
// outcome. ctx only bounds the wait: when it ends first the transfer keeps
// running and ctx's error is returned.
func (t *Transfer) Wait(ctx context.Context) (*transfertypes.Result, error) {
	select {
	case <-t.tracker.Done():
		return t.tracker.Outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel stops the transfer. Parts already sent keep running to their end,
// parts not started yet are never sent, and the multipart upload is aborted
// (or the download artifacts deleted) once. Cancel after the transfer started
// completing has no effect. It does not wait; use Wait for the outcome.
func (t *Transfer) Cancel() {
	t.control.Stop(errors.ErrCanceled)
}

// Pause stops the transfer like Cancel but keeps the completed parts and
// returns a token that continues the transfer with WithResumeToken. It
// blocks until the transfer stopped.
//
// If the transfer finished before the pause took effect the token is nil and
// so is the error. If it failed, the failure is returned. A paused upload that
// never created its multipart upload returns a nil token with an error
// matching ErrPaused: there is nothing to resume and it must start over.
func (t *Transfer) Pause() (*transfertypes.ResumeToken, error) {
	t.control.Stop(errors.ErrPaused)
	<-t.tracker.Done()

	_, err := t.tracker.Outcome()
	if err == nil {
		return nil, nil
	}
	if !errors.IsPaused(err) {
		return nil, err
	}
	if token := t.control.ResumeToken(); token != nil {
		return token, nil
	}
	return nil, err
}

// ListenerErr returns the errors returned by asynchronous listeners so far.
// Errors of synchronous listeners are reported through Wait.
func (t *Transfer) ListenerErr() error {
	return t.events.Err()
}

// ListenersDrained is closed once every event was delivered to the
// asynchronous listeners after the transfer ended.
func (t *Transfer) ListenersDrained() <-chan struct{} {
	return t.events.Drained()
}

// settled waits until the transfer ended and its events were delivered.
func (t *Transfer) settled(ctx context.Context) error {
	for _, ch := range []<-chan struct{}{t.tracker.Done(), t.events.Drained()} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
