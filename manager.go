package transfer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/operations"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/progress"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const (
	// DefaultPoolSize is the number of shared workers of a manager
	DefaultPoolSize = 10

	// DefaultPartSize is the part size of transfers that do not set one
	DefaultPartSize int64 = 8 * 1024 * 1024

	// DefaultConcurrency is the per-transfer limit of parts in flight
	DefaultConcurrency = 5

	// DefaultContentType is used when content type detection fails
	DefaultContentType = "application/octet-stream"
)

// Manager starts transfers against one object store.
// All transfers of a manager share its worker pool, buffers and rate limiter.
// A Manager is safe for concurrent use.
type Manager struct {
	store  store.ObjectStore
	config transfertypes.ManagerConfig
	deps   operations.Deps

	mu     sync.Mutex
	closed bool
	active map[string]*Transfer
}

// New creates a manager for objects with the provided options.
//
// Example:
//
//	mgr, err := transfer.New(objects,
//	    transfer.WithPoolSize(16),
//	    transfer.WithDefaultConcurrency(4),
//	)
func New(objects store.ObjectStore, opts ...transfertypes.Option) (*Manager, error) {
	if objects == nil {
		return nil, errors.NewError("new", errors.ErrInvalidInput).WithMessage("object store cannot be nil")
	}

	cfg := transfertypes.ManagerConfig{
		PoolSize:    DefaultPoolSize,
		PartSize:    DefaultPartSize,
		Concurrency: DefaultConcurrency,
		Limits:      transfertypes.DefaultPartLimits(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Filesystem == nil {
		// Default to OS filesystem rooted at /
		cfg.Filesystem = osfs.New("/")
	}

	workers, err := pool.New(cfg.PoolSize)
	if err != nil {
		return nil, errors.NewError("new", errors.ErrInvalidInput).WithMessage(err.Error())
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.RequestBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Manager{
		store:  objects,
		config: cfg,
		deps: operations.Deps{
			Store:      objects,
			Pool:       workers,
			Buffers:    pool.NewBufferPool(),
			Limiter:    limiter,
			Metrics:    metrics.New(cfg.Registerer, workers.Stats),
			Logger:     cfg.Logger,
			Filesystem: cfg.Filesystem,
		},
		active: make(map[string]*Transfer),
	}, nil
}

// Close stops accepting transfers, waits for the running ones to reach a
// terminal state and shuts the worker pool down. Running transfers are not
// canceled; cancel them first to close quickly.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	pending := make([]*Transfer, 0, len(m.active))
	for _, t := range m.active {
		pending = append(pending, t)
	}
	m.mu.Unlock()

	for _, t := range pending {
		if err := t.settled(ctx); err != nil {
			return errors.NewError("close", err)
		}
	}
	if err := m.deps.Pool.Shutdown(ctx); err != nil {
		return errors.NewError("close", err)
	}
	return nil
}

// Active returns the number of transfers that have not settled yet.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// transferConfig applies opts over the manager defaults.
func (m *Manager) transferConfig(opts []transfertypes.TransferOption) transfertypes.TransferOptionConfig {
	cfg := transfertypes.TransferOptionConfig{
		PartSize:    m.config.PartSize,
		Concurrency: m.config.Concurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (m *Manager) settings(cfg transfertypes.TransferOptionConfig, onTerminal func()) operations.Settings {
	return operations.Settings{
		PartSize:    cfg.PartSize,
		Concurrency: cfg.Concurrency,
		Limits:      m.config.Limits,
		ContentType: cfg.ContentType,
		Metadata:    cfg.Metadata,
		ResumeToken: cfg.ResumeToken,
		ObjectSize:  cfg.ObjectSize,
		OnTerminal:  onTerminal,
	}
}

// session holds the per-transfer state created before the direction
// specific monitor.
type session struct {
	tracker *progress.Tracker
	events  *progress.Dispatcher
}

func (m *Manager) newSession(
	direction transfertypes.Direction,
	bucket, key string,
	total int64,
	cfg transfertypes.TransferOptionConfig,
) session {
	regs := make([]transfertypes.ListenerRegistration, 0, len(m.config.Listeners)+len(cfg.Listeners))
	regs = append(regs, m.config.Listeners...)
	regs = append(regs, cfg.Listeners...)

	return session{
		tracker: progress.NewTracker(uuid.NewString(), direction, bucket, key, total),
		events:  progress.NewDispatcher(regs),
	}
}

// admit registers t and runs start, unless the manager is closed.
func (m *Manager) admit(op string, t *Transfer, start func()) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.NewObjectError(op, t.Bucket(), t.Key(), errors.ErrClosed)
	}
	m.active[t.ID()] = t
	m.mu.Unlock()

	go func() {
		<-t.Done()
		<-t.events.Drained()
		m.mu.Lock()
		delete(m.active, t.ID())
		m.mu.Unlock()
	}()

	m.deps.Logger.Debug("transfer admitted",
		"transfer_id", t.ID(),
		"direction", string(t.Direction()),
		"bucket", t.Bucket(),
		"key", t.Key(),
	)
	start()
	return nil
}

// checkRequest validates the identifiers and object attributes of a request.
func checkRequest(op, bucket, key string, cfg transfertypes.TransferOptionConfig) error {
	for _, check := range []func() error{
		func() error { return validation.ValidateBucketName(bucket) },
		func() error { return validation.ValidateObjectKey(key) },
		func() error { return validation.ValidateMetadata(cfg.Metadata) },
		func() error { return validation.ValidateContentType(cfg.ContentType) },
	} {
		if err := check(); err != nil {
			return errors.NewObjectError(op, bucket, key, errors.ErrInvalidInput).WithMessage(err.Error())
		}
	}
	return nil
}
