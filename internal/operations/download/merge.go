package download

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// merge concatenates the part artifacts in ascending part order into the
// merge file and renames it onto the destination. Part artifacts are removed
// afterwards; failing to remove them does not fail the download.
func (m *Monitor) merge(_ context.Context) (*transfertypes.Result, error) {
	parts := m.Ledger().Completed()
	mergePath := m.mergePath()

	m.track(mergePath)
	out, err := m.fs.Create(mergePath)
	if err != nil {
		return nil, m.storageError("merge", 0, err)
	}

	buf := m.Deps().Buffers.GetCopy()
	defer m.Deps().Buffers.PutCopy(buf)

	var size int64
	for _, p := range parts {
		n, err := m.appendPart(out, p.Number, buf)
		if err != nil {
			_ = out.Close()
			return nil, m.storageError("merge", p.Number, err)
		}
		if n != p.Size {
			_ = out.Close()
			return nil, m.storageError("merge", p.Number,
				fmt.Errorf("%w: artifact has %d bytes, expected %d", errors.ErrSizeMismatch, n, p.Size))
		}
		size += n
	}

	if s, ok := out.(syncer); ok {
		if err := s.Sync(); err != nil {
			_ = out.Close()
			return nil, m.storageError("merge", 0, err)
		}
	}
	if err := out.Close(); err != nil {
		return nil, m.storageError("merge", 0, err)
	}
	if err := m.fs.Rename(mergePath, m.dest); err != nil {
		return nil, m.storageError("rename", 0, err)
	}
	m.untrack(mergePath)

	if logger := m.Deps().Logger; logger != nil {
		logger.InfoContext(m.NetContext(), "download merged",
			"transfer_id", m.Tracker().ID(),
			"bucket", m.bucket,
			"key", m.key,
			"path", m.dest,
			"parts", len(parts))
	}

	return &transfertypes.Result{
		Path:       m.dest,
		Size:       size,
		Parts:      len(parts),
		ETag:       m.etag,
		CleanupErr: m.removeArtifacts(),
	}, nil
}

func (m *Monitor) appendPart(out io.Writer, number int, buf []byte) (int64, error) {
	in, err := m.fs.Open(m.partPath(number))
	if err != nil {
		return 0, err
	}
	defer in.Close()
	return io.CopyBuffer(out, in, buf)
}

// removeArtifacts deletes every tracked artifact. Artifacts that are already
// gone are not an error.
func (m *Monitor) removeArtifacts() error {
	var errs []error
	for _, path := range m.Artifacts() {
		if err := m.fs.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		m.untrack(path)
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.NewObjectError("removeArtifacts", m.bucket, m.key, stderrors.Join(errs...)).
		WithKind(errors.KindStorage)
}
