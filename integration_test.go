//go:build integration
// +build integration

package transfer_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const integrationBucket = "xfer-integration"

func newIntegrationManager(t *testing.T) *transfer.Manager {
	t.Helper()
	st := testutil.SetupLocalStack(t, integrationBucket)

	m, err := transfer.New(st, transfer.WithPoolSize(8))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func waitFor(t *testing.T, tr *transfer.Transfer) (*transfertypes.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return tr.Wait(ctx)
}

// TestIntegrationMultipartRoundTrip uploads a multipart object and downloads it again.
func TestIntegrationMultipartRoundTrip(t *testing.T) {
	m := newIntegrationManager(t)
	ctx := context.Background()
	data := testutil.TestData(42, 12*1024*1024)

	up, err := m.Upload(ctx, integrationBucket, "roundtrip/object.bin", bytes.NewReader(data), int64(len(data)),
		transfer.WithPartSize(5*1024*1024))
	require.NoError(t, err)
	result, err := waitFor(t, up)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Parts)
	assert.NotEmpty(t, result.ETag)

	dest := filepath.Join(t.TempDir(), "object.bin")
	down, err := m.Download(ctx, integrationBucket, "roundtrip/object.bin", dest,
		transfer.WithPartSize(5*1024*1024))
	require.NoError(t, err)
	result, err = waitFor(t, down)
	require.NoError(t, err)
	assert.Equal(t, dest, result.Path)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "part artifacts are removed after the merge")
}

// TestIntegrationStreamingUpload uploads a stream of unknown size.
func TestIntegrationStreamingUpload(t *testing.T) {
	m := newIntegrationManager(t)
	data := testutil.TestData(7, 11*1024*1024)

	tr, err := m.Upload(context.Background(), integrationBucket, "stream/object.bin",
		testutil.ReaderOnly{R: bytes.NewReader(data)}, -1, transfer.WithPartSize(5*1024*1024))
	require.NoError(t, err)
	result, err := waitFor(t, tr)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Parts)
	assert.Equal(t, int64(len(data)), result.Size)
}

// TestIntegrationMissingObject checks error classification of a real service.
func TestIntegrationMissingObject(t *testing.T) {
	m := newIntegrationManager(t)

	_, err := m.Download(context.Background(), integrationBucket, "does/not/exist",
		filepath.Join(t.TempDir(), "out"))
	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}
