package transfer

import (
	"context"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations/download"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Download starts downloading bucket/key into the file dest of the manager's
// filesystem.
//
// Parts are fetched with ranged reads into temporary artifacts next to dest
// and merged in part order once all of them succeeded; dest is replaced
// atomically by a rename. On failure or cancel the artifacts are deleted, on
// pause they are kept for the resume token.
//
// The object size is read with a HEAD request unless WithObjectSize is given.
func (m *Manager) Download(
	ctx context.Context,
	bucket, key, dest string,
	opts ...transfertypes.TransferOption,
) (*Transfer, error) {
	cfg := m.transferConfig(opts)
	if err := checkRequest("download", bucket, key, cfg); err != nil {
		return nil, err
	}

	info, err := m.objectInfo(ctx, bucket, key, cfg.ObjectSize)
	if err != nil {
		return nil, err
	}
	return m.startDownload(ctx, bucket, key, dest, info, cfg)
}

// Resume continues the transfer a token was issued for. path is the local
// file: the upload source or the download destination. Upload tokens of
// streams cannot be resumed with Resume; use Upload with WithResumeToken and
// a reader positioned at the start of the stream.
func (m *Manager) Resume(
	ctx context.Context,
	token *transfertypes.ResumeToken,
	path string,
	opts ...transfertypes.TransferOption,
) (*Transfer, error) {
	if token == nil {
		return nil, errors.NewError("resume", errors.ErrInvalidInput).WithMessage("resume token cannot be nil")
	}
	opts = append(opts, WithResumeToken(token))

	switch token.Direction {
	case transfertypes.DirectionUpload:
		return m.UploadFile(ctx, token.Bucket, token.Key, path, opts...)
	case transfertypes.DirectionDownload:
		return m.Download(ctx, token.Bucket, token.Key, path, opts...)
	default:
		return nil, errors.NewObjectError("resume", token.Bucket, token.Key, errors.ErrInvalidInput).
			WithMessage("unknown transfer direction " + string(token.Direction))
	}
}

func (m *Manager) objectInfo(ctx context.Context, bucket, key string, size int64) (store.ObjectInfo, error) {
	if size > 0 {
		return store.ObjectInfo{Key: key, Size: size}, nil
	}

	info, err := m.store.HeadObject(ctx, bucket, key)
	if err != nil {
		return store.ObjectInfo{}, errors.NewObjectError("download", bucket, key, err)
	}
	return info, nil
}

func (m *Manager) startDownload(
	ctx context.Context,
	bucket, key, dest string,
	info store.ObjectInfo,
	cfg transfertypes.TransferOptionConfig,
) (*Transfer, error) {
	s := m.newSession(transfertypes.DirectionDownload, bucket, key, info.Size, cfg)
	monitor, err := download.New(ctx, m.deps, m.settings(cfg, nil), s.tracker, s.events, dest, info)
	if err != nil {
		s.events.Close()
		return nil, err
	}

	t := newTransfer(monitor.Control, s)
	if err := m.admit("download", t, monitor.Start); err != nil {
		s.events.Close()
		return nil, err
	}
	return t, nil
}
