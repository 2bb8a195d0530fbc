package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

func newUploadCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path> s3://bucket/key",
		Short: "Upload a file or a directory",
		Long: `Upload a file to s3://bucket/key, or every file of a directory under the
key prefix. A key ending in a slash receives the file's base name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := loadOptions(cmd, v)
			if err != nil {
				return err
			}
			return runUpload(cmd, o, args[0], args[1])
		},
	}
}

func runUpload(cmd *cobra.Command, o options, src, dst string) error {
	loc, err := parseLocation(dst)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}

	m, logger, err := setup(cmd, o)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close(cmd.Context()) }()

	ctx := cmd.Context()
	out := cmd.ErrOrStderr()

	if info.IsDir() {
		mt, err := m.UploadDirectory(ctx, loc.Bucket, loc.Key, abs, transferOptions(o)...)
		if err != nil {
			return err
		}
		results, err := watchDirectory(out, logger, mt)
		logger.Info("directory upload finished",
			"files", len(results),
			"skipped", len(mt.Skipped()),
			"bytes", humanize.IBytes(uint64(mt.Progress().BytesTransferred)),
		)
		return err
	}

	key := loc.Key
	if loc.IsPrefix() {
		key = path.Join(loc.Key, filepath.Base(abs))
	}

	token, err := readToken(o.ResumeFile)
	if err != nil {
		return err
	}
	if token != nil && token.Direction != transfertypes.DirectionUpload {
		return fmt.Errorf("resume file %s holds a %s token", o.ResumeFile, token.Direction)
	}

	opts := transferOptions(o)
	if token != nil {
		logger.Info("resuming upload",
			"resume_file", o.ResumeFile,
			"completed", humanize.IBytes(uint64(token.CompletedBytes())),
		)
		opts = append(opts, transfer.WithResumeToken(token))
	}

	t, err := m.UploadFile(ctx, loc.Bucket, key, abs, opts...)
	if err != nil {
		return err
	}
	result, err := watchTransfer(out, logger, t, o.ResumeFile)
	if err != nil {
		return err
	}

	logger.Info("upload finished",
		"location", location{Bucket: result.Bucket, Key: result.Key}.String(),
		"size", humanize.IBytes(uint64(result.Size)),
		"parts", result.Parts,
		"etag", result.ETag,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return nil
}
