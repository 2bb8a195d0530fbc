// Package download orchestrates ranged downloads of a single object.
//
// Every part is fetched with one ranged GET into its own temporary artifact
// next to the destination and flushed before it reports success. Once all
// parts are in place they are merged in ascending order into a merge file
// that is renamed onto the destination. Failed and canceled downloads remove
// every artifact after in-flight parts drained.
package download

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/minio/sha256-simd"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/planner"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// Monitor is the orchestrator of one download.
type Monitor struct {
	*operations.Control

	bucket string
	key    string
	dest   string
	fs     billy.Filesystem
	plan   *planner.Plan
	etag   string
	prefix string // artifact path prefix: <dir>/.<id>

	mu        sync.Mutex
	artifacts map[string]struct{}
}

// New validates the request and plans the download of the object described
// by info into dest. Parts listed in a resume token are only reused when
// their artifact still exists with the expected length.
func New(
	ctx context.Context,
	deps operations.Deps,
	settings operations.Settings,
	tracker *progress.Tracker,
	events *progress.Dispatcher,
	dest string,
	info store.ObjectInfo,
) (*Monitor, error) {
	bucket, key := tracker.Bucket(), tracker.Key()
	if dest == "" {
		return nil, invalid(bucket, key, "destination path is empty")
	}
	if deps.Filesystem == nil {
		return nil, invalid(bucket, key, "no filesystem configured")
	}

	m := &Monitor{
		bucket:    bucket,
		key:       key,
		dest:      dest,
		fs:        deps.Filesystem,
		etag:      info.ETag,
		prefix:    artifactPrefix(deps.Filesystem, dest),
		artifacts: make(map[string]struct{}),
	}

	partSize := settings.PartSize
	token := settings.ResumeToken
	if token != nil {
		if err := m.checkToken(token, info.Size); err != nil {
			return nil, err
		}
		partSize = token.PartSize
	}

	plan, err := planner.New(info.Size, partSize, settings.Limits)
	if err != nil {
		return nil, errors.NewObjectError("download", bucket, key, err)
	}
	m.plan = plan

	m.Control = operations.NewControl(ctx, "download", deps, settings, tracker, events, operations.Hooks{
		Finish:  m.merge,
		Cleanup: m.cleanup,
	})
	tracker.SetTotal(info.Size)

	if token != nil {
		restored := m.verifyArtifacts(token)
		m.Ledger().Restore(restored)
		for _, p := range restored {
			tracker.AddProgress(p.Size)
		}
	}
	return m, nil
}

// Start begins the download in the background.
func (m *Monitor) Start() {
	m.Control.Start(m.run)
}

// Plan returns the part layout.
func (m *Monitor) Plan() *planner.Plan {
	return m.plan
}

// Artifacts returns the temporary files the download currently owns.
func (m *Monitor) Artifacts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.artifacts))
	for p := range m.artifacts {
		paths = append(paths, p)
	}
	return paths
}

func (m *Monitor) run() {
	m.Settle(m.feed())
}

func (m *Monitor) feed() error {
	if err := m.fs.MkdirAll(filepath.Dir(m.dest), 0o755); err != nil {
		return m.storageError("createDirectory", 0, err)
	}
	m.Tracker().Transition(transfertypes.StateInitiated)
	if err := m.Started(); err != nil {
		return err
	}

	for _, part := range m.plan.Parts {
		if m.Ledger().Has(part.Number) {
			continue
		}
		if !m.BeginPart() {
			return errors.ErrCanceled
		}
		m.SubmitPart(part, func() (multipart.Result, time.Duration) { return m.fetchPart(part) })
	}

	m.Seal(len(m.plan.Parts))
	return nil
}

func (m *Monitor) cleanup(_ context.Context, cause error) (*transfertypes.ResumeToken, error) {
	if errors.IsPaused(cause) {
		m.untrack(m.mergePath())
		return &transfertypes.ResumeToken{
			Version:   transfertypes.ResumeTokenVersion,
			Direction: transfertypes.DirectionDownload,
			Bucket:    m.bucket,
			Key:       m.key,
			Path:      m.dest,
			PartSize:  m.plan.PartSize,
			TotalSize: m.plan.TotalSize,
			ETag:      m.etag,
			Parts:     m.Ledger().Completed(),
		}, nil
	}
	return nil, m.removeArtifacts()
}

func (m *Monitor) checkToken(token *transfertypes.ResumeToken, size int64) error {
	if err := token.Validate(); err != nil {
		return invalid(m.bucket, m.key, err.Error())
	}
	switch {
	case token.Direction != transfertypes.DirectionDownload:
		return invalid(m.bucket, m.key, "resume token is not a download token")
	case token.Bucket != m.bucket || token.Key != m.key:
		return invalid(m.bucket, m.key, fmt.Sprintf("resume token belongs to %s/%s", token.Bucket, token.Key))
	case token.Path != m.dest:
		return invalid(m.bucket, m.key, fmt.Sprintf("resume token was issued for %s", token.Path))
	case token.TotalSize != size:
		return invalid(m.bucket, m.key, "object size changed since the download was paused")
	case token.ETag != "" && m.etag != "" && token.ETag != m.etag:
		return invalid(m.bucket, m.key, "object changed since the download was paused")
	}
	return nil
}

// verifyArtifacts returns the token parts whose artifact exists with the
// length the plan expects. Everything else is fetched again.
func (m *Monitor) verifyArtifacts(token *transfertypes.ResumeToken) []transfertypes.CompletedPart {
	var restored []transfertypes.CompletedPart
	for _, p := range token.Parts {
		if p.Number > len(m.plan.Parts) || m.plan.Parts[p.Number-1].Length != p.Size {
			continue
		}
		path := m.partPath(p.Number)
		m.track(path)
		fi, err := m.fs.Stat(path)
		if err != nil || fi.Size() != p.Size {
			continue
		}
		restored = append(restored, transfertypes.CompletedPart{Number: p.Number, Size: p.Size, Token: path})
	}
	return restored
}

func (m *Monitor) partPath(n int) string {
	return fmt.Sprintf("%s.part-%05d", m.prefix, n)
}

func (m *Monitor) mergePath() string {
	return m.prefix + ".merge"
}

func (m *Monitor) track(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[path] = struct{}{}
}

func (m *Monitor) untrack(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.artifacts, path)
}

// artifactPrefix derives a stable artifact name from the destination so a
// resumed download finds the artifacts of the paused one.
func artifactPrefix(fs billy.Filesystem, dest string) string {
	sum := sha256.Sum256([]byte(dest))
	return fs.Join(filepath.Dir(dest), "."+hex.EncodeToString(sum[:])[:16])
}

func invalid(bucket, key, msg string) error {
	return errors.NewObjectError("download", bucket, key, errors.ErrInvalidInput).WithMessage(msg)
}
