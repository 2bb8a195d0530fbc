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

func newDownloadCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "download s3://bucket/key <path>",
		Short: "Download an object or a key prefix",
		Long: `Download s3://bucket/key to a local file, or every object under a key
prefix ending in a slash into a local directory. When path is an existing
directory the object is stored in it under its base name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := loadOptions(cmd, v)
			if err != nil {
				return err
			}
			return runDownload(cmd, o, args[0], args[1])
		},
	}
}

func runDownload(cmd *cobra.Command, o options, src, dst string) error {
	loc, err := parseLocation(src)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(dst)
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

	if loc.IsPrefix() {
		mt, err := m.DownloadDirectory(ctx, loc.Bucket, loc.Key, abs, transferOptions(o)...)
		if err != nil {
			return err
		}
		results, err := watchDirectory(out, logger, mt)
		logger.Info("directory download finished",
			"objects", len(results),
			"skipped", len(mt.Skipped()),
			"bytes", humanize.IBytes(uint64(mt.Progress().BytesTransferred)),
		)
		return err
	}

	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		abs = filepath.Join(abs, path.Base(loc.Key))
	}

	token, err := readToken(o.ResumeFile)
	if err != nil {
		return err
	}
	if token != nil && token.Direction != transfertypes.DirectionDownload {
		return fmt.Errorf("resume file %s holds a %s token", o.ResumeFile, token.Direction)
	}

	opts := transferOptions(o)
	if token != nil {
		logger.Info("resuming download",
			"resume_file", o.ResumeFile,
			"completed", humanize.IBytes(uint64(token.CompletedBytes())),
		)
		opts = append(opts, transfer.WithResumeToken(token))
	}

	t, err := m.Download(ctx, loc.Bucket, loc.Key, abs, opts...)
	if err != nil {
		return err
	}
	result, err := watchTransfer(out, logger, t, o.ResumeFile)
	if err != nil {
		return err
	}

	logger.Info("download finished",
		"path", result.Path,
		"size", humanize.IBytes(uint64(result.Size)),
		"parts", result.Parts,
		"duration", result.Duration.Round(time.Millisecond),
	)
	if result.CleanupErr != nil {
		logger.Warn("failed to remove part artifacts", "error", result.CleanupErr)
	}
	return nil
}
