// Package upload orchestrates uploads of a single object.
//
// A Monitor plans the parts, feeds them to the shared pool under the
// transfer's concurrency limit and finishes with a complete-multipart
// request, or aborts the multipart upload once after in-flight parts drained.
// Objects that fit into one part are uploaded with a single PutObject.
package upload

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Monitor is the orchestrator of one upload.
type Monitor struct {
	*operations.Control

	bucket   string
	key      string
	src      io.Reader
	size     int64 // -1 for sources of unknown size
	partSize int64
	plan     *planner.Plan
	cursor   *planner.Cursor
	input    store.UploadInput
	resumed  bool

	// written by the feeder before the first part task is submitted
	uploadID string
	single   bool

	// written by the single put task before it reports
	put store.ObjectInfo
}

// New validates the request and plans the upload. size is -1 when the
// length of src is unknown; src is then read in fixed size parts until EOF.
// Nothing is sent to the store before Start.
func New(
	ctx context.Context,
	deps operations.Deps,
	settings operations.Settings,
	tracker *progress.Tracker,
	events *progress.Dispatcher,
	src io.Reader,
	size int64,
) (*Monitor, error) {
	bucket, key := tracker.Bucket(), tracker.Key()
	if src == nil {
		return nil, invalid(bucket, key, "source reader is nil")
	}

	m := &Monitor{
		bucket:   bucket,
		key:      key,
		src:      src,
		size:     size,
		partSize: settings.PartSize,
		input: store.UploadInput{
			ContentType: settings.ContentType,
			Metadata:    settings.Metadata,
		},
	}

	token := settings.ResumeToken
	if token != nil {
		if err := m.checkToken(token); err != nil {
			return nil, err
		}
		m.partSize = token.PartSize
	}

	var err error
	if size >= 0 {
		m.plan, err = planner.New(size, m.partSize, settings.Limits)
		if err == nil && token != nil {
			err = m.checkRestored(token)
		}
	} else {
		m.cursor, err = planner.Streaming(m.partSize, settings.Limits)
	}
	if err != nil {
		return nil, errors.NewObjectError("upload", bucket, key, err)
	}

	m.Control = operations.NewControl(ctx, "upload", deps, settings, tracker, events, operations.Hooks{
		Finish:  m.finish,
		Cleanup: m.cleanup,
	})

	if token != nil {
		m.resumed = true
		m.uploadID = token.UploadID
		m.Ledger().Restore(token.Parts)
		tracker.AddProgress(token.CompletedBytes())
	}
	return m, nil
}

// Start begins the upload in the background.
func (m *Monitor) Start() {
	m.Control.Start(m.run)
}

// Plan returns the part layout for sources of known size.
func (m *Monitor) Plan() *planner.Plan {
	return m.plan
}

func (m *Monitor) run() {
	m.Settle(m.feed())
}

func (m *Monitor) feed() error {
	if m.resumed {
		m.Tracker().Transition(transfertypes.StateInitiated)
		if err := m.Started(); err != nil {
			return err
		}
	}
	if m.plan != nil {
		return m.feedPlanned()
	}
	return m.feedStream()
}

// feedPlanned submits the parts of a source of known size.
func (m *Monitor) feedPlanned() error {
	if !m.plan.Multipart() {
		return m.feedSingle(m.plan.Parts[0])
	}
	if err := m.initiate(); err != nil {
		return err
	}

	for _, part := range m.plan.Parts {
		if m.Ledger().Has(part.Number) {
			if err := m.skip(part); err != nil {
				return err
			}
			continue
		}
		if !m.BeginPart() {
			return errors.ErrCanceled
		}
		body, buf, err := m.read(part)
		if err != nil {
			m.Complete(multipart.Failure(part, err), 0)
			return nil
		}
		m.SubmitPart(part, func() (multipart.Result, time.Duration) { return m.uploadPart(part, body, buf) })
	}

	m.Seal(len(m.plan.Parts))
	return nil
}

func (m *Monitor) feedSingle(part planner.Part) error {
	if !m.BeginPart() {
		return errors.ErrCanceled
	}
	if err := m.Started(); err != nil {
		m.Withdraw()
		return err
	}
	body, buf, err := m.read(part)
	if err != nil {
		m.Complete(multipart.Failure(part, err), 0)
		return nil
	}
	m.single = true
	m.SubmitPart(part, func() (multipart.Result, time.Duration) { return m.putObject(part, body, buf) })
	m.Seal(1)
	return nil
}

// feedStream reads a source of unknown size part by part. A part is only
// read once a concurrency slot is free, so at most Concurrency part buffers
// are held at any time.
func (m *Monitor) feedStream() error {
	buffers := m.Deps().Buffers
	count := 0
	var end int64

	for {
		if !m.BeginPart() {
			return errors.ErrCanceled
		}

		buf := buffers.GetPart(int(m.partSize))
		n, err := io.ReadFull(m.src, buf)
		if err == io.EOF {
			buffers.PutPart(buf)
			m.Withdraw()
			if count == 0 {
				return invalid(m.bucket, m.key, "source is empty")
			}
			m.Tracker().SetTotal(end)
			m.Seal(count)
			return nil
		}
		next := planner.Part{Number: count + 1, Offset: end}
		if err != nil && err != io.ErrUnexpectedEOF {
			buffers.PutPart(buf)
			m.Complete(multipart.Failure(next, m.sourceError(next, err)), 0)
			return nil
		}
		last := err == io.ErrUnexpectedEOF

		part, err := m.cursor.Next()
		if err != nil {
			buffers.PutPart(buf)
			m.Complete(multipart.Failure(next, err), 0)
			return nil
		}
		part.Length = int64(n)
		body := buf[:n]
		count++
		end = part.End()

		switch {
		case part.Number == 1 && last && !m.resumed:
			m.Tracker().SetTotal(end)
			if err := m.Started(); err != nil {
				buffers.PutPart(buf)
				m.Withdraw()
				return err
			}
			m.single = true
			m.SubmitPart(part, func() (multipart.Result, time.Duration) { return m.putObject(part, newBody(body), buf) })
			m.Seal(1)
			return nil

		case m.Ledger().Has(part.Number):
			buffers.PutPart(buf)
			m.Withdraw()

		default:
			if err := m.initiate(); err != nil {
				buffers.PutPart(buf)
				m.Withdraw()
				return err
			}
			m.SubmitPart(part, func() (multipart.Result, time.Duration) { return m.uploadPart(part, newBody(body), buf) })
		}

		if last {
			m.Tracker().SetTotal(end)
			m.Seal(count)
			return nil
		}
	}
}

// initiate creates the multipart upload unless it already exists.
func (m *Monitor) initiate() error {
	if m.uploadID != "" {
		return nil
	}
	if err := m.Ready(); err != nil {
		return err
	}

	id, err := m.Deps().Store.InitiateMultipartUpload(m.NetContext(), m.bucket, m.key, m.input)
	if err != nil {
		return errors.NewObjectError("initiateMultipartUpload", m.bucket, m.key, err)
	}
	m.uploadID = id
	m.Tracker().Transition(transfertypes.StateInitiated)

	if logger := m.Deps().Logger; logger != nil {
		logger.InfoContext(m.NetContext(), "multipart upload initiated",
			"transfer_id", m.Tracker().ID(),
			"bucket", m.bucket,
			"key", m.key,
			"upload_id", id)
	}
	return m.Started()
}

// skip moves a sequential source past a part restored from a resume token.
func (m *Monitor) skip(part planner.Part) error {
	if _, ok := m.src.(io.ReaderAt); ok {
		return nil
	}
	if _, err := io.CopyN(io.Discard, m.src, part.Length); err != nil {
		return m.sourceError(part, err)
	}
	return nil
}

func (m *Monitor) finish(ctx context.Context) (*transfertypes.Result, error) {
	parts := m.Ledger().Completed()
	result := &transfertypes.Result{
		Size:  m.Ledger().CompletedBytes(),
		Parts: len(parts),
	}

	if m.single {
		result.ETag = m.put.ETag
		result.VersionID = m.put.VersionID
		return result, nil
	}

	completed := make([]store.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = store.CompletedPart{PartNumber: p.Number, ETag: p.Token}
	}
	info, err := m.Deps().Store.CompleteMultipartUpload(ctx, m.bucket, m.key, m.uploadID, completed)
	if err != nil {
		return nil, errors.NewObjectError("completeMultipartUpload", m.bucket, m.key, err)
	}
	result.ETag = info.ETag
	result.VersionID = info.VersionID
	return result, nil
}

// cleanup aborts the multipart upload. A paused upload keeps it and yields a
// resume token instead.
func (m *Monitor) cleanup(ctx context.Context, cause error) (*transfertypes.ResumeToken, error) {
	if m.uploadID == "" || m.single {
		return nil, nil
	}

	if errors.IsPaused(cause) {
		return &transfertypes.ResumeToken{
			Version:   transfertypes.ResumeTokenVersion,
			Direction: transfertypes.DirectionUpload,
			Bucket:    m.bucket,
			Key:       m.key,
			UploadID:  m.uploadID,
			PartSize:  m.partSize,
			TotalSize: m.size,
			Parts:     m.Ledger().Completed(),
		}, nil
	}

	if err := m.Deps().Store.AbortMultipartUpload(ctx, m.bucket, m.key, m.uploadID); err != nil {
		return nil, errors.NewObjectError("abortMultipartUpload", m.bucket, m.key, err)
	}
	if logger := m.Deps().Logger; logger != nil {
		logger.InfoContext(ctx, "multipart upload aborted",
			"transfer_id", m.Tracker().ID(),
			"bucket", m.bucket,
			"key", m.key,
			"upload_id", m.uploadID)
	}
	return nil, nil
}

func (m *Monitor) checkToken(token *transfertypes.ResumeToken) error {
	if err := token.Validate(); err != nil {
		return invalid(m.bucket, m.key, err.Error())
	}
	if token.Direction != transfertypes.DirectionUpload {
		return invalid(m.bucket, m.key, "resume token is not an upload token")
	}
	if token.Bucket != m.bucket || token.Key != m.key {
		return invalid(m.bucket, m.key, fmt.Sprintf("resume token belongs to %s/%s", token.Bucket, token.Key))
	}
	if m.size >= 0 && token.TotalSize >= 0 && token.TotalSize != m.size {
		return invalid(m.bucket, m.key,
			fmt.Sprintf("resume token was issued for %d bytes, source has %d", token.TotalSize, m.size))
	}
	return nil
}

// checkRestored verifies that restored parts match the plan.
func (m *Monitor) checkRestored(token *transfertypes.ResumeToken) error {
	if !m.plan.Multipart() || m.plan.PartSize != token.PartSize {
		return invalid(m.bucket, m.key, "resume token does not match the part layout of the source")
	}
	for _, p := range token.Parts {
		if p.Number > len(m.plan.Parts) || m.plan.Parts[p.Number-1].Length != p.Size {
			return invalid(m.bucket, m.key, fmt.Sprintf("resume token part %d does not match the source", p.Number))
		}
	}
	return nil
}

func invalid(bucket, key, msg string) error {
	return errors.NewObjectError("upload", bucket, key, errors.ErrInvalidInput).WithMessage(msg)
}
