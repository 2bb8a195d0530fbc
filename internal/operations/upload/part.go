package upload

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
)

// uploadPart is the part task of a multipart upload. It issues exactly one
// UploadPart request, or none when the transfer stopped before it ran.
func (m *Monitor) uploadPart(part planner.Part, body io.ReadSeeker, buf []byte) (multipart.Result, time.Duration) {
	defer m.Deps().Buffers.PutPart(buf)

	if err := m.Ready(); err != nil {
		return multipart.Failure(part, err), 0
	}

	start := time.Now()
	token, err := m.Deps().Store.UploadPart(m.NetContext(), m.bucket, m.key, m.uploadID, part.Number, body, part.Length)
	elapsed := time.Since(start)
	if err != nil {
		return multipart.Failure(part, errors.NewObjectError("uploadPart", m.bucket, m.key, err).WithPart(part.Number)), elapsed
	}
	return multipart.Success(part, token), elapsed
}

// putObject is the only part task of an object that fits into one part.
func (m *Monitor) putObject(part planner.Part, body io.ReadSeeker, buf []byte) (multipart.Result, time.Duration) {
	defer m.Deps().Buffers.PutPart(buf)

	if err := m.Ready(); err != nil {
		return multipart.Failure(part, err), 0
	}

	start := time.Now()
	info, err := m.Deps().Store.PutObject(m.NetContext(), m.bucket, m.key, body, part.Length, m.input)
	elapsed := time.Since(start)
	if err != nil {
		return multipart.Failure(part, errors.NewObjectError("putObject", m.bucket, m.key, err)), elapsed
	}
	m.put = info
	return multipart.Success(part, info.ETag), elapsed
}

// read returns the body of part. Sources implementing io.ReaderAt are read
// lazily through a section reader; other sources are read into a pooled
// buffer that the part task returns.
func (m *Monitor) read(part planner.Part) (io.ReadSeeker, []byte, error) {
	if ra, ok := m.src.(io.ReaderAt); ok {
		return io.NewSectionReader(ra, part.Offset, part.Length), nil, nil
	}

	buffers := m.Deps().Buffers
	buf := buffers.GetPart(int(m.plan.PartSize))
	if _, err := io.ReadFull(m.src, buf[:part.Length]); err != nil {
		buffers.PutPart(buf)
		return nil, nil, m.sourceError(part, err)
	}
	return newBody(buf[:part.Length]), buf, nil
}

func (m *Monitor) sourceError(part planner.Part, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.NewObjectError("readSource", m.bucket, m.key,
			fmt.Errorf("%w: source ended inside part %d", errors.ErrSizeMismatch, part.Number)).
			WithPart(part.Number).
			WithKind(errors.KindInvalidInput)
	}
	e := errors.NewObjectError("readSource", m.bucket, m.key, err).WithPart(part.Number)
	if e.Kind == errors.KindUnknown {
		e.Kind = errors.KindStorage
	}
	return e
}

func newBody(b []byte) io.ReadSeeker {
	return bytes.NewReader(b)
}
