package transfer

import (
	"context"
	stderrors "errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/scanner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// MultipleTransfer is a directory transfer made of one Transfer per file.
// At most the manager's default concurrency of files is in flight; the
// parts of every file share the manager's pool.
type MultipleTransfer struct {
	total   int64
	skipped []string

	mu        sync.Mutex
	canceled  bool
	transfers []*Transfer
	results   []*transfertypes.Result
	errs      []error

	done chan struct{}
}

// UploadDirectory uploads every regular file under dir to bucket, keyed by
// prefix followed by the file's slash-separated path relative to dir.
// WithInclude and WithExclude filter the files; empty files are skipped.
func (m *Manager) UploadDirectory(
	ctx context.Context,
	bucket, prefix, dir string,
	opts ...transfertypes.TransferOption,
) (*MultipleTransfer, error) {
	cfg := m.transferConfig(opts)
	if err := checkDirectoryRequest("uploadDirectory", bucket, prefix, cfg); err != nil {
		return nil, err
	}

	matcher, err := scanner.NewMatcher(cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, errors.NewObjectError("uploadDirectory", bucket, prefix, errors.ErrInvalidInput).
			WithMessage(err.Error())
	}
	files, err := scanner.New(m.store, m.deps.Filesystem, matcher).ScanLocal(ctx, dir)
	if err != nil {
		return nil, errors.NewObjectError("uploadDirectory", bucket, prefix, err).WithKind(errors.KindStorage)
	}

	mt := &MultipleTransfer{done: make(chan struct{})}
	starts := make([]func() (*Transfer, error), 0, len(files))
	for _, f := range files {
		if f.Size == 0 {
			mt.skipped = append(mt.skipped, f.Path)
			continue
		}
		key := joinKey(prefix, f.Rel)
		if err := validation.ValidateObjectKey(key); err != nil {
			return nil, errors.NewObjectError("uploadDirectory", bucket, key, errors.ErrInvalidInput).
				WithMessage(err.Error())
		}
		mt.total += f.Size
		starts = append(starts, func() (*Transfer, error) {
			return m.UploadFile(ctx, bucket, key, f.Path, opts...)
		})
	}

	m.deps.Logger.InfoContext(ctx, "directory upload planned",
		"bucket", bucket,
		"prefix", prefix,
		"dir", dir,
		"files", len(starts),
		"skipped", len(mt.skipped),
		"bytes", mt.total,
	)
	go mt.run(m.config.Concurrency, starts)
	return mt, nil
}

// DownloadDirectory downloads every object under prefix into dir, at the
// object's key relative to prefix. Keys that would resolve outside dir fail
// the request before anything is transferred. Empty objects are skipped.
func (m *Manager) DownloadDirectory(
	ctx context.Context,
	bucket, prefix, dir string,
	opts ...transfertypes.TransferOption,
) (*MultipleTransfer, error) {
	cfg := m.transferConfig(opts)
	if err := checkDirectoryRequest("downloadDirectory", bucket, prefix, cfg); err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, errors.NewObjectError("downloadDirectory", bucket, prefix, errors.ErrInvalidInput).
			WithMessage("destination directory cannot be empty")
	}

	matcher, err := scanner.NewMatcher(cfg.IncludePatterns, cfg.ExcludePatterns)
	if err != nil {
		return nil, errors.NewObjectError("downloadDirectory", bucket, prefix, errors.ErrInvalidInput).
			WithMessage(err.Error())
	}
	objects, err := scanner.New(m.store, m.deps.Filesystem, matcher).ScanRemote(ctx, bucket, prefix)
	if err != nil {
		return nil, errors.NewObjectError("downloadDirectory", bucket, prefix, err)
	}

	mt := &MultipleTransfer{done: make(chan struct{})}
	starts := make([]func() (*Transfer, error), 0, len(objects))
	for _, obj := range objects {
		if err := validation.ValidateRelativePath(obj.Rel); err != nil {
			return nil, errors.NewObjectError("downloadDirectory", bucket, obj.Info.Key, errors.ErrInvalidInput).
				WithMessage(err.Error())
		}
		if obj.Info.Size == 0 {
			mt.skipped = append(mt.skipped, obj.Info.Key)
			continue
		}
		dest := m.deps.Filesystem.Join(dir, filepath.FromSlash(obj.Rel))
		mt.total += obj.Info.Size
		fileOpts := append(append([]transfertypes.TransferOption{}, opts...), WithObjectSize(obj.Info.Size))
		starts = append(starts, func() (*Transfer, error) {
			return m.Download(ctx, bucket, obj.Info.Key, dest, fileOpts...)
		})
	}

	m.deps.Logger.InfoContext(ctx, "directory download planned",
		"bucket", bucket,
		"prefix", prefix,
		"dir", dir,
		"objects", len(starts),
		"skipped", len(mt.skipped),
		"bytes", mt.total,
	)
	go mt.run(m.config.Concurrency, starts)
	return mt, nil
}

func (mt *MultipleTransfer) run(limit int, starts []func() (*Transfer, error)) {
	defer close(mt.done)

	mt.mu.Lock()
	mt.results = make([]*transfertypes.Result, len(starts))
	mt.mu.Unlock()

	var (
		g          errgroup.Group
		notStarted atomic.Int64
	)
	g.SetLimit(max(limit, 1))
	for i, start := range starts {
		g.Go(func() error {
			if mt.stopped() {
				notStarted.Add(1)
				return nil
			}
			t, err := start()
			if err != nil {
				mt.fail(err)
				return nil
			}
			if !mt.add(t) {
				t.Cancel()
			}
			res, err := t.Wait(context.Background())
			if err != nil {
				mt.fail(err)
				return nil
			}
			mt.mu.Lock()
			mt.results[i] = res
			mt.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if n := notStarted.Load(); n > 0 {
		mt.fail(fmt.Errorf("%w: %d files not started", errors.ErrCanceled, n))
	}
}

func (mt *MultipleTransfer) stopped() bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.canceled
}

// add records a started transfer. It reports false when the directory
// transfer was canceled meanwhile.
func (mt *MultipleTransfer) add(t *Transfer) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.transfers = append(mt.transfers, t)
	return !mt.canceled
}

func (mt *MultipleTransfer) fail(err error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.errs = append(mt.errs, err)
}

// Transfers returns the file transfers started so far.
func (mt *MultipleTransfer) Transfers() []*Transfer {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return append([]*Transfer(nil), mt.transfers...)
}

// Skipped returns the empty files or objects that were not transferred.
func (mt *MultipleTransfer) Skipped() []string {
	return append([]string(nil), mt.skipped...)
}

// Progress aggregates the progress of the file transfers. TotalBytes is the
// size of every file to transfer, including the ones not started yet.
func (mt *MultipleTransfer) Progress() transfertypes.Snapshot {
	snap := transfertypes.Snapshot{TotalBytes: mt.total, State: transfertypes.StatePending}
	select {
	case <-mt.done:
		snap.State = transfertypes.StateDone
		if mt.Err() != nil {
			snap.State = transfertypes.StateFailed
		}
	default:
		snap.State = transfertypes.StatePartsInFlight
	}
	for _, t := range mt.Transfers() {
		snap.BytesTransferred += t.Progress().BytesTransferred
	}
	return snap
}

// Cancel cancels every running file transfer and starts no further ones.
func (mt *MultipleTransfer) Cancel() {
	mt.mu.Lock()
	mt.canceled = true
	running := append([]*Transfer(nil), mt.transfers...)
	mt.mu.Unlock()

	for _, t := range running {
		t.Cancel()
	}
}

// Done is closed once every file transfer ended.
func (mt *MultipleTransfer) Done() <-chan struct{} {
	return mt.done
}

// Wait blocks until every file transfer ended. It returns the results of
// the files that succeeded, in scan order, and the errors of the others
// joined together. ctx only bounds the wait.
func (mt *MultipleTransfer) Wait(ctx context.Context) ([]*transfertypes.Result, error) {
	select {
	case <-mt.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	results := make([]*transfertypes.Result, 0, len(mt.results))
	for _, r := range mt.results {
		if r != nil {
			results = append(results, r)
		}
	}
	return results, stderrors.Join(mt.errs...)
}

// Err returns the joined errors of the file transfers that failed so far.
func (mt *MultipleTransfer) Err() error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return stderrors.Join(mt.errs...)
}

func checkDirectoryRequest(op, bucket, prefix string, cfg transfertypes.TransferOptionConfig) error {
	if err := validation.ValidateBucketName(bucket); err != nil {
		return errors.NewObjectError(op, bucket, prefix, errors.ErrInvalidInput).WithMessage(err.Error())
	}
	if cfg.ResumeToken != nil {
		return errors.NewObjectError(op, bucket, prefix, errors.ErrInvalidInput).
			WithMessage("directory transfers cannot be resumed from a token")
	}
	if err := validation.ValidateMetadata(cfg.Metadata); err != nil {
		return errors.NewObjectError(op, bucket, prefix, errors.ErrInvalidInput).WithMessage(err.Error())
	}
	return nil
}

func joinKey(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return path.Join(strings.TrimSuffix(prefix, "/"), rel)
}
