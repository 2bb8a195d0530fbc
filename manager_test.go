package transfer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	kib = 1024
	mib = 1024 * kib
)

var testLimits = transfertypes.PartLimits{MinPartSize: 1, MaxPartSize: 1 << 30, MaxParts: 10_000}

func newManager(t *testing.T, objects store.ObjectStore, opts ...transfertypes.Option) *Manager {
	t.Helper()
	opts = append([]transfertypes.Option{
		WithPoolSize(4),
		WithPartLimits(testLimits),
		WithFilesystem(memfs.New()),
	}, opts...)

	m, err := New(objects, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, m.Close(ctx))
	})
	return m
}

func wait(t *testing.T, tr *Transfer) (*transfertypes.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := tr.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "transfer did not reach a terminal state")
	<-tr.ListenersDrained()
	return res, err
}

func TestNew(t *testing.T) {
	t.Run("nil_store", func(t *testing.T) {
		_, err := New(nil)
		assert.True(t, errors.IsInvalidInput(err))
	})

	t.Run("defaults", func(t *testing.T) {
		m := newManager(t, testutil.NewMemoryStore())
		cfg := m.transferConfig(nil)
		assert.Equal(t, DefaultPartSize, cfg.PartSize)
		assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
		assert.Equal(t, 4, m.deps.Pool.Size())
		assert.Nil(t, m.deps.Limiter)
	})

	t.Run("options", func(t *testing.T) {
		m := newManager(t, testutil.NewMemoryStore(),
			WithDefaultPartSize(mib),
			WithDefaultConcurrency(2),
			WithRateLimit(100, 10),
		)
		cfg := m.transferConfig([]transfertypes.TransferOption{WithConcurrency(7)})
		assert.Equal(t, int64(mib), cfg.PartSize)
		assert.Equal(t, 7, cfg.Concurrency)
		require.NotNil(t, m.deps.Limiter)
		assert.Equal(t, 10, m.deps.Limiter.Burst())
	})
}

func TestManager_UploadTenMegabytesInTwoMegabyteParts(t *testing.T) {
	data := testutil.TestData(1, 10*mib)
	st := testutil.NewMemoryStore()
	listener := &testutil.RecordingListener{}
	m := newManager(t, st)

	tr, err := m.Upload(context.Background(), "bucket", "data/object.bin", bytes.NewReader(data), int64(len(data)),
		WithPartSize(2*mib),
		WithListener(listener, transfertypes.DeliverSync),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID())
	assert.Equal(t, transfertypes.DirectionUpload, tr.Direction())

	result, err := wait(t, tr)
	require.NoError(t, err)
	assert.Equal(t, tr.ID(), result.ID)
	assert.Equal(t, 5, result.Parts)
	assert.Equal(t, int64(10*mib), result.Size)

	stored, ok := st.Object("bucket", "data/object.bin")
	require.True(t, ok)
	assert.True(t, bytes.Equal(data, stored))

	calls := st.Calls()
	assert.Equal(t, 1, calls.Initiates)
	assert.Equal(t, 5, calls.Parts)
	assert.Equal(t, 1, calls.Completes)
	assert.Zero(t, calls.Aborts)

	snap := tr.Progress()
	assert.Equal(t, transfertypes.StateDone, snap.State)
	assert.Equal(t, int64(10*mib), snap.BytesTransferred)
	assert.Equal(t, 100.0, snap.Percent())
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, listener.Parts(transfertypes.EventPartCompleted))
	assert.Equal(t, 1, listener.Count(transfertypes.EventTransferCompleted))
	assert.Equal(t, "application/octet-stream", st.ContentType("bucket", "data/object.bin"))
}

func TestManager_PartFailureAbortsOnceWithoutDoubleCounting(t *testing.T) {
	data := testutil.TestData(2, 10*mib)
	st := testutil.NewMemoryStore()
	st.BeforeUploadPart = func(_ context.Context, n int) error {
		if n == 3 {
			return testutil.MockAPIError("InternalError")
		}
		return nil
	}
	listener := &testutil.RecordingListener{}
	m := newManager(t, st, WithManagerListener(listener, transfertypes.DeliverAsync))

	tr, err := m.Upload(context.Background(), "bucket", "key", bytes.NewReader(data), int64(len(data)),
		WithPartSize(2*mib))
	require.NoError(t, err)

	_, err = wait(t, tr)
	require.Error(t, err)
	assert.Equal(t, errors.KindUnavailable, errors.KindOf(err))
	assert.NoError(t, tr.ListenerErr())

	calls := st.Calls()
	assert.Equal(t, 1, calls.Aborts)
	assert.Zero(t, calls.Completes)
	assert.Zero(t, st.OpenUploads())

	var accepted int64
	for _, e := range listener.Events() {
		if e.Type == transfertypes.EventPartCompleted {
			accepted += e.Bytes
		}
	}
	assert.Equal(t, accepted, tr.Progress().BytesTransferred)
	assert.Equal(t, transfertypes.StateFailed, tr.Progress().State)
	assert.Equal(t, []int{3}, listener.Parts(transfertypes.EventPartFailed))
	assert.Equal(t, 1, listener.Count(transfertypes.EventTransferFailed))
}

func TestManager_CallerContextCancels(t *testing.T) {
	data := testutil.TestData(3, 4*kib)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entered := make(chan struct{})
	gate := make(chan struct{})
	st := testutil.NewMemoryStore()
	st.BeforeUploadPart = func(_ context.Context, n int) error {
		if n == 1 {
			close(entered)
		}
		<-gate
		return nil
	}
	m := newManager(t, st)

	tr, err := m.Upload(ctx, "bucket", "key", bytes.NewReader(data), int64(len(data)),
		WithPartSize(kib), WithConcurrency(1))
	require.NoError(t, err)

	<-entered
	cancel()
	require.Eventually(t, tr.control.Ledger().Stopped, time.Second, time.Millisecond)
	close(gate)

	_, err = wait(t, tr)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)

	calls := st.Calls()
	assert.Equal(t, 1, calls.Parts, "only the part in flight is sent")
	assert.Equal(t, 1, calls.Aborts)
	assert.Zero(t, calls.Completes)
	assert.Zero(t, st.OpenUploads())
	assert.Zero(t, tr.Progress().BytesTransferred, "the drained part is discarded")
}

func TestManager_CancelBeforeAnyPart(t *testing.T) {
	data := testutil.TestData(4, 4*kib)
	entered := make(chan struct{})
	gate := make(chan struct{})

	st := testutil.NewMemoryStore()
	st.BeforeInitiate = func(context.Context) error {
		close(entered)
		<-gate
		return nil
	}
	m := newManager(t, st)

	tr, err := m.Upload(context.Background(), "bucket", "key", bytes.NewReader(data), int64(len(data)),
		WithPartSize(kib))
	require.NoError(t, err)

	<-entered
	tr.Cancel()
	close(gate)

	_, err = wait(t, tr)
	assert.True(t, errors.IsCanceled(err))
	assert.Zero(t, st.Calls().Parts)
	assert.Equal(t, 1, st.Calls().Aborts)
	assert.Zero(t, tr.Progress().BytesTransferred)
}

func TestManager_PauseAndResumeUploadFile(t *testing.T) {
	data := testutil.TestData(5, 6*kib)
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/archive.bin", data, 0o644))

	entered := make(chan struct{})
	gate := make(chan struct{})
	st := testutil.NewMemoryStore()
	st.BeforeUploadPart = func(_ context.Context, n int) error {
		if n == 3 {
			close(entered)
			<-gate
		}
		return nil
	}
	m := newManager(t, st, WithFilesystem(fs))

	tr, err := m.UploadFile(context.Background(), "bucket", "archive.bin", "/data/archive.bin",
		WithPartSize(kib), WithConcurrency(1))
	require.NoError(t, err)

	<-entered
	paused := make(chan struct{})
	var token *transfertypes.ResumeToken
	var pauseErr error
	go func() {
		defer close(paused)
		token, pauseErr = tr.Pause()
	}()
	require.Eventually(t, tr.control.Ledger().Stopped, time.Second, time.Millisecond)
	close(gate)
	<-paused

	require.NoError(t, pauseErr)
	require.NotNil(t, token)
	assert.Len(t, token.Parts, 2)
	assert.Zero(t, st.Calls().Aborts)
	assert.Equal(t, 1, st.OpenUploads())

	encoded, err := token.Marshal()
	require.NoError(t, err)
	decoded, err := transfertypes.UnmarshalResumeToken(encoded)
	require.NoError(t, err)

	st.BeforeUploadPart = nil
	resumed, err := m.Resume(context.Background(), decoded, "/data/archive.bin")
	require.NoError(t, err)

	result, err := wait(t, resumed)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Parts)

	stored, _ := st.Object("bucket", "archive.bin")
	assert.True(t, bytes.Equal(data, stored))
	assert.Equal(t, 1, st.Calls().Initiates)
	assert.Equal(t, 3+4, st.Calls().Parts)
	assert.Zero(t, st.OpenUploads())
}

func TestManager_PauseAfterCompletion(t *testing.T) {
	st := testutil.NewMemoryStore()
	m := newManager(t, st)

	tr, err := m.Upload(context.Background(), "bucket", "key", strings.NewReader("tiny"), 4)
	require.NoError(t, err)
	_, err = wait(t, tr)
	require.NoError(t, err)

	token, err := tr.Pause()
	assert.NoError(t, err)
	assert.Nil(t, token)
}

func TestManager_UploadFileContentType(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/docs/report.pdf", []byte("%PDF-1.4\n%binary\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/docs/notes", []byte("plain words\n"), 0o644))
	require.NoError(t, util.WriteFile(fs, "/docs/blob.json", []byte{0x00, 0x01, 0x02}, 0o644))

	tests := []struct {
		name string
		path string
		opts []transfertypes.TransferOption
		want string
	}{
		{"sniffed_pdf", "/docs/report.pdf", nil, "application/pdf"},
		{"sniffed_text", "/docs/notes", nil, "text/plain; charset=utf-8"},
		{"extension_fallback", "/docs/blob.json", nil, "application/json"},
		{"explicit", "/docs/notes", []transfertypes.TransferOption{WithContentType("text/markdown")}, "text/markdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testutil.NewMemoryStore()
			m := newManager(t, st, WithFilesystem(fs))

			tr, err := m.UploadFile(context.Background(), "bucket", "object", tt.path, tt.opts...)
			require.NoError(t, err)
			_, err = wait(t, tr)
			require.NoError(t, err)

			assert.Equal(t, tt.want, st.ContentType("bucket", "object"))
			assert.Equal(t, 1, st.Calls().Puts)
		})
	}
}

func TestManager_Download(t *testing.T) {
	data := testutil.TestData(6, 10*mib)
	fs := memfs.New()
	st := testutil.NewMemoryStore()
	st.Put("bucket", "data/object.bin", data)

	order := testutil.Shuffled(6, 5)
	st.BeforeGetRange = func(_ context.Context, offset, _ int64) error {
		part := int(offset / (2 * mib))
		time.Sleep(time.Duration(order[part]) * 5 * time.Millisecond)
		return nil
	}
	m := newManager(t, st, WithFilesystem(fs))

	tests := []struct {
		name string
		opts []transfertypes.TransferOption
	}{
		{"head_request", nil},
		{"known_size", []transfertypes.TransferOption{WithObjectSize(int64(len(data)))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := "/restore/" + tt.name + ".bin"
			opts := append([]transfertypes.TransferOption{WithPartSize(2 * mib)}, tt.opts...)

			tr, err := m.Download(context.Background(), "bucket", "data/object.bin", dest, opts...)
			require.NoError(t, err)
			result, err := wait(t, tr)
			require.NoError(t, err)
			assert.Equal(t, dest, result.Path)
			assert.Equal(t, 5, result.Parts)
			assert.NoError(t, result.CleanupErr)

			got, err := util.ReadFile(fs, dest)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, got), "parts are merged in order")
		})
	}

	entries, err := fs.ReadDir("/restore")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no part artifacts are left behind")
}

func TestManager_DownloadMissingObject(t *testing.T) {
	m := newManager(t, testutil.NewMemoryStore())

	_, err := m.Download(context.Background(), "bucket", "missing", "/out.bin")
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestManager_Validation(t *testing.T) {
	fs := memfs.New()
	require.NoError(t, fs.MkdirAll("/dir", 0o755))
	m := newManager(t, testutil.NewMemoryStore(), WithFilesystem(fs))
	ctx := context.Background()
	src := strings.NewReader("data")

	tests := []struct {
		name string
		run  func() (*Transfer, error)
	}{
		{"bad_bucket", func() (*Transfer, error) { return m.Upload(ctx, "B", "key", src, 4) }},
		{"empty_key", func() (*Transfer, error) { return m.Upload(ctx, "bucket", "", src, 4) }},
		{"traversal_key", func() (*Transfer, error) { return m.Upload(ctx, "bucket", "../key", src, 4) }},
		{"nil_reader", func() (*Transfer, error) { return m.Upload(ctx, "bucket", "key", nil, 4) }},
		{"empty_object", func() (*Transfer, error) { return m.Upload(ctx, "bucket", "key", src, 0) }},
		{"bad_metadata", func() (*Transfer, error) {
			return m.Upload(ctx, "bucket", "key", src, 4, WithMetadata(map[string]string{"x-amz-id": "1"}))
		}},
		{"bad_content_type", func() (*Transfer, error) {
			return m.Upload(ctx, "bucket", "key", src, 4, WithContentType("nonsense"))
		}},
		{"part_too_small", func() (*Transfer, error) {
			strict := newManager(t, testutil.NewMemoryStore(), WithPartLimits(transfertypes.DefaultPartLimits()))
			return strict.Upload(ctx, "bucket", "key", src, 4, WithPartSize(1))
		}},
		{"directory_upload_file", func() (*Transfer, error) { return m.UploadFile(ctx, "bucket", "key", "/dir") }},
		{"empty_download_dest", func() (*Transfer, error) {
			return m.Download(ctx, "bucket", "key", "", WithObjectSize(10))
		}},
		{"wrong_token_direction", func() (*Transfer, error) {
			token := &transfertypes.ResumeToken{
				Version:   transfertypes.ResumeTokenVersion,
				Direction: transfertypes.DirectionDownload,
				Bucket:    "bucket",
				Key:       "key",
				PartSize:  1,
				TotalSize: 4,
			}
			return m.Upload(ctx, "bucket", "key", src, 4, WithResumeToken(token))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := tt.run()
			assert.Nil(t, tr)
			assert.True(t, errors.IsInvalidInput(err), "got %v", err)
		})
	}
	assert.Zero(t, m.Active())
}

func TestManager_Close(t *testing.T) {
	data := testutil.TestData(7, 2*kib)
	entered := make(chan struct{})
	gate := make(chan struct{})

	st := testutil.NewMemoryStore()
	st.BeforeUploadPart = func(_ context.Context, n int) error {
		if n == 1 {
			close(entered)
			<-gate
		}
		return nil
	}
	m, err := New(st, WithPoolSize(2), WithPartLimits(testLimits))
	require.NoError(t, err)

	tr, err := m.Upload(context.Background(), "bucket", "key", bytes.NewReader(data), int64(len(data)),
		WithPartSize(kib))
	require.NoError(t, err)
	<-entered
	assert.Equal(t, 1, m.Active())

	closed := make(chan error, 1)
	go func() { closed <- m.Close(context.Background()) }()

	select {
	case <-closed:
		t.Fatal("Close returned while a transfer was running")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = m.Upload(context.Background(), "bucket", "other", bytes.NewReader(data), int64(len(data)))
	assert.ErrorIs(t, err, errors.ErrClosed)

	close(gate)
	require.NoError(t, <-closed)

	_, err = wait(t, tr)
	assert.NoError(t, err)
	require.NoError(t, m.Close(context.Background()), "Close is idempotent")
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	st := testutil.NewMemoryStore()
	m := newManager(t, st, WithMetrics(reg))

	data := testutil.TestData(8, 4*kib)
	tr, err := m.Upload(context.Background(), "bucket", "key", bytes.NewReader(data), int64(len(data)),
		WithPartSize(kib))
	require.NoError(t, err)
	_, err = wait(t, tr)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "xfer_transfer_parts_total")
	assert.Contains(t, names, "xfer_pool_workers")

	count, err := promtestutil.GatherAndCount(reg, "xfer_transfer_transfers_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_ListenerError(t *testing.T) {
	data := testutil.TestData(9, 3*kib)
	boom := assert.AnError

	tests := []struct {
		name    string
		mode    transfertypes.DeliveryMode
		failOn  transfertypes.EventType
		wantErr bool
	}{
		{"sync_part_completed_fails_transfer", transfertypes.DeliverSync, transfertypes.EventPartCompleted, true},
		{"sync_terminal_recorded_on_result", transfertypes.DeliverSync, transfertypes.EventTransferCompleted, false},
		{"async_recorded_on_transfer", transfertypes.DeliverAsync, transfertypes.EventPartCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testutil.NewMemoryStore()
			m := newManager(t, st)
			listener := &testutil.RecordingListener{
				FailOn: map[transfertypes.EventType]bool{tt.failOn: true},
				Err:    boom,
			}

			tr, err := m.Upload(context.Background(), "bucket", "key", bytes.NewReader(data), int64(len(data)),
				WithPartSize(kib), WithListener(listener, tt.mode))
			require.NoError(t, err)

			result, err := wait(t, tr)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.KindListener, errors.KindOf(err))
				assert.ErrorIs(t, err, boom)
				assert.Equal(t, 1, st.Calls().Aborts)
				return
			}

			require.NoError(t, err)
			switch tt.mode {
			case transfertypes.DeliverSync:
				assert.ErrorIs(t, result.ListenerErr, boom)
			case transfertypes.DeliverAsync:
				assert.ErrorIs(t, tr.ListenerErr(), boom)
			}
		})
	}
}
