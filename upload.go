package transfer

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/upload"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// sniffLength is how much of a file is read to detect its content type.
const sniffLength = 3072

// Upload starts uploading size bytes read from src to bucket/key.
//
// A src implementing io.ReaderAt is read concurrently, one section per part;
// any other reader is consumed sequentially. size is -1 when the length of src
// is unknown: the stream is then cut into parts of the configured part size
// until EOF. An object that fits into a single part is stored with one
// PutObject request.
//
// The transfer runs in the background; the returned Transfer reports its
// progress and outcome. Planning errors are returned directly.
func (m *Manager) Upload(
	ctx context.Context,
	bucket, key string,
	src io.Reader,
	size int64,
	opts ...transfertypes.TransferOption,
) (*Transfer, error) {
	cfg := m.transferConfig(opts)
	if err := checkRequest("upload", bucket, key, cfg); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.NewObjectError("upload", bucket, key, errors.ErrInvalidInput).
			WithMessage("reader cannot be nil")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = contentTypeFromExtension(key)
	}

	return m.startUpload(ctx, "upload", bucket, key, src, size, cfg, nil)
}

// UploadFile starts uploading the file at path, read from the manager's
// filesystem. The content type is detected from the file when not set.
func (m *Manager) UploadFile(
	ctx context.Context,
	bucket, key, path string,
	opts ...transfertypes.TransferOption,
) (*Transfer, error) {
	cfg := m.transferConfig(opts)
	if err := checkRequest("uploadFile", bucket, key, cfg); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.NewObjectError("uploadFile", bucket, key, errors.ErrInvalidInput).
			WithMessage("filepath cannot be empty")
	}

	fs := m.deps.Filesystem
	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.NewObjectError("uploadFile", bucket, key, err).WithKind(errors.KindStorage)
	}
	if info.IsDir() {
		return nil, errors.NewObjectError("uploadFile", bucket, key, errors.ErrInvalidInput).
			WithMessage("filepath points to a directory, not a file")
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, errors.NewObjectError("uploadFile", bucket, key, err).WithKind(errors.KindStorage)
	}
	if cfg.ContentType == "" {
		cfg.ContentType = detectContentType(file, path)
	}

	release := func() {
		if err := file.Close(); err != nil {
			m.deps.Logger.Warn("failed to close upload source",
				"path", path,
				"error", err,
			)
		}
	}
	return m.startUpload(ctx, "uploadFile", bucket, key, file, info.Size(), cfg, release)
}

func (m *Manager) startUpload(
	ctx context.Context,
	op, bucket, key string,
	src io.Reader,
	size int64,
	cfg transfertypes.TransferOptionConfig,
	release func(),
) (*Transfer, error) {
	if release == nil {
		release = func() {}
	}

	s := m.newSession(transfertypes.DirectionUpload, bucket, key, size, cfg)
	monitor, err := upload.New(ctx, m.deps, m.settings(cfg, release), s.tracker, s.events, src, size)
	if err != nil {
		s.events.Close()
		release()
		return nil, err
	}

	t := newTransfer(monitor.Control, s)
	if err := m.admit(op, t, monitor.Start); err != nil {
		s.events.Close()
		release()
		return nil, err
	}
	return t, nil
}

// detectContentType sniffs the head of file, falling back to the extension.
func detectContentType(file billy.File, path string) string {
	buf := make([]byte, sniffLength)
	n, _ := file.ReadAt(buf, 0)
	if n > 0 {
		if mt := mimetype.Detect(buf[:n]); mt != nil && !mt.Is(DefaultContentType) {
			return mt.String()
		}
	}
	return contentTypeFromExtension(path)
}

func contentTypeFromExtension(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	return DefaultContentType
}
