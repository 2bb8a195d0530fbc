package download

import (
	"fmt"
	"io"
	"time"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
)

// syncer is implemented by files that can be flushed to stable storage.
type syncer interface {
	Sync() error
}

// fetchPart is the part task of a download. It issues exactly one ranged GET,
// or none when the transfer stopped before it ran, and reports success only
// once the artifact is flushed.
func (m *Monitor) fetchPart(part planner.Part) (multipart.Result, time.Duration) {
	if err := m.Ready(); err != nil {
		return multipart.Failure(part, err), 0
	}

	start := time.Now()
	path := m.partPath(part.Number)
	err := m.fetch(part, path)
	elapsed := time.Since(start)
	if err != nil {
		return multipart.Failure(part, err), elapsed
	}
	return multipart.Success(part, path), elapsed
}

func (m *Monitor) fetch(part planner.Part, path string) error {
	body, err := m.Deps().Store.GetObjectRange(m.NetContext(), m.bucket, m.key, part.Offset, part.Length)
	if err != nil {
		return errors.NewObjectError("getObjectRange", m.bucket, m.key, err).WithPart(part.Number)
	}
	defer body.Close()

	m.track(path)
	f, err := m.fs.Create(path)
	if err != nil {
		return m.storageError("createArtifact", part.Number, err)
	}

	buf := m.Deps().Buffers.GetCopy()
	defer m.Deps().Buffers.PutCopy(buf)

	n, readErr, writeErr := copyPart(f, body, buf)
	switch {
	case writeErr != nil:
		_ = f.Close()
		return m.storageError("writeArtifact", part.Number, writeErr)
	case readErr != nil:
		_ = f.Close()
		e := errors.NewObjectError("readRange", m.bucket, m.key, readErr).WithPart(part.Number)
		if e.Kind == errors.KindUnknown {
			e.Kind = errors.KindNetwork
		}
		return e
	case n != part.Length:
		_ = f.Close()
		return errors.NewObjectError("readRange", m.bucket, m.key,
			fmt.Errorf("%w: got %d bytes, expected %d", errors.ErrSizeMismatch, n, part.Length)).
			WithPart(part.Number).
			WithKind(errors.KindNetwork)
	}

	if s, ok := f.(syncer); ok {
		if err := s.Sync(); err != nil {
			_ = f.Close()
			return m.storageError("syncArtifact", part.Number, err)
		}
	}
	if err := f.Close(); err != nil {
		return m.storageError("closeArtifact", part.Number, err)
	}
	return nil
}

// copyPart copies src to dst and tells read failures from write failures.
func copyPart(dst io.Writer, src io.Reader, buf []byte) (written int64, readErr, writeErr error) {
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, nil, werr
			}
			if nw != nr {
				return written, nil, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil, nil
		}
		if rerr != nil {
			return written, rerr, nil
		}
	}
}

func (m *Monitor) storageError(op string, part int, err error) error {
	return errors.NewObjectError(op, m.bucket, m.key, err).
		WithPart(part).
		WithKind(errors.KindStorage)
}
