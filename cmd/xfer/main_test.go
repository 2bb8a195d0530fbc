package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    location
		prefix  bool
		wantErr bool
	}{
		{raw: "s3://bucket/key.bin", want: location{Bucket: "bucket", Key: "key.bin"}},
		{raw: "s3://bucket/dir/key", want: location{Bucket: "bucket", Key: "dir/key"}},
		{raw: "s3://bucket/dir/", want: location{Bucket: "bucket", Key: "dir/"}, prefix: true},
		{raw: "s3://bucket", want: location{Bucket: "bucket"}, prefix: true},
		{raw: "bucket/key", wantErr: true},
		{raw: "s3:///key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseLocation(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.prefix, got.IsPrefix())
		})
	}
}

func newTestCommand(t *testing.T, args ...string) (*cobra.Command, *viper.Viper) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addPersistentFlags(cmd.Flags())
	v := viper.New()
	require.NoError(t, v.BindPFlags(cmd.Flags()))
	require.NoError(t, cmd.ParseFlags(args))
	require.NoError(t, loadConfig(cmd, v))
	return cmd, v
}

func TestLoadOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cmd, v := newTestCommand(t)
		o, err := loadOptions(cmd, v)
		require.NoError(t, err)
		assert.Equal(t, "s3", o.Backend)
		assert.Equal(t, int64(8*1024*1024), o.PartSize)
		assert.Equal(t, 5, o.Concurrency)
		assert.Equal(t, 3, o.MaxAttempts)
	})

	t.Run("env_then_flag_precedence", func(t *testing.T) {
		t.Setenv("XFER_CONCURRENCY", "9")
		t.Setenv("XFER_PART_SIZE", "16MiB")

		cmd, v := newTestCommand(t, "--part-size", "32MiB")
		o, err := loadOptions(cmd, v)
		require.NoError(t, err)
		assert.Equal(t, 9, o.Concurrency)
		assert.Equal(t, int64(32*1024*1024), o.PartSize)
	})

	t.Run("config_file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "xfer.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: minio\nendpoint: localhost:9000\npool-size: 3\n"), 0o600))

		cmd, v := newTestCommand(t, "--config", path, "--pool-size", "7")
		o, err := loadOptions(cmd, v)
		require.NoError(t, err)
		assert.Equal(t, "minio", o.Backend)
		assert.Equal(t, "localhost:9000", o.Endpoint)
		assert.Equal(t, 7, o.PoolSize)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, args := range [][]string{
			{"--part-size", "lots"},
			{"--backend", "ftp"},
			{"--backend", "minio"},
		} {
			cmd, v := newTestCommand(t, args...)
			_, err := loadOptions(cmd, v)
			assert.Error(t, err, strings.Join(args, " "))
		}
	})
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name    string
		snap    transfertypes.Snapshot
		elapsed time.Duration
		want    string
	}{
		{
			name:    "known_total",
			snap:    transfertypes.Snapshot{BytesTransferred: 512 * 1024, TotalBytes: 1024 * 1024, State: transfertypes.StatePartsInFlight},
			elapsed: time.Second,
			want:    "512 KiB / 1.0 MiB (50.0%) 512 KiB/s PARTS_IN_FLIGHT",
		},
		{
			name: "unknown_total",
			snap: transfertypes.Snapshot{BytesTransferred: 2048, TotalBytes: -1, State: transfertypes.StateInitiated},
			want: "2.0 KiB INITIATED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatProgress(tt.snap, tt.elapsed))
		})
	}
}

func TestResumeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.token")

	token, err := readToken(path)
	require.NoError(t, err)
	assert.Nil(t, token, "a missing resume file means a fresh transfer")

	want := &transfertypes.ResumeToken{
		Version:   transfertypes.ResumeTokenVersion,
		Direction: transfertypes.DirectionUpload,
		Bucket:    "bucket",
		Key:       "key",
		UploadID:  "upload-1",
		PartSize:  5 * 1024 * 1024,
		TotalSize: 12 * 1024 * 1024,
		Parts:     []transfertypes.CompletedPart{{Number: 1, Size: 5 * 1024 * 1024, Token: "etag-1"}},
	}
	require.NoError(t, writeToken(path, want))

	got, err := readToken(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "transfer_id", "t-1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "t-1")

	_, err = newLogger(&buf, "loud")
	assert.Error(t, err)
}
