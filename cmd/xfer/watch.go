package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/input-output-hk/catalyst-forge-libs/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

const refreshInterval = 500 * time.Millisecond

// formatProgress renders a one line progress report.
func formatProgress(snap transfertypes.Snapshot, elapsed time.Duration) string {
	line := humanize.IBytes(uint64(snap.BytesTransferred))
	if snap.TotalBytes >= 0 {
		line += fmt.Sprintf(" / %s (%.1f%%)", humanize.IBytes(uint64(snap.TotalBytes)), snap.Percent())
	}
	if secs := elapsed.Seconds(); secs > 0 {
		line += fmt.Sprintf(" %s/s", humanize.IBytes(uint64(float64(snap.BytesTransferred)/secs)))
	}
	return line + " " + snap.State.String()
}

// watchTransfer renders progress until t ends. The first interrupt pauses
// the transfer when resumeFile is set and cancels it otherwise.
func watchTransfer(w io.Writer, logger *slog.Logger, t *transfer.Transfer, resumeFile string) (*transfertypes.Result, error) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-t.Done():
			fmt.Fprintf(w, "\r%s\n", formatProgress(t.Progress(), time.Since(started)))
			result, err := t.Wait(context.Background())
			if err == nil && resumeFile != "" {
				_ = os.Remove(resumeFile)
			}
			return result, err

		case <-ticker.C:
			fmt.Fprintf(w, "\r%s", formatProgress(t.Progress(), time.Since(started)))

		case <-sigs:
			if resumeFile == "" {
				logger.Warn("interrupted, canceling transfer", "transfer_id", t.ID())
				t.Cancel()
				continue
			}

			logger.Warn("interrupted, pausing transfer", "transfer_id", t.ID())
			token, err := t.Pause()
			if err != nil {
				return nil, err
			}
			if token == nil {
				// finished before the pause took effect
				return t.Wait(context.Background())
			}
			if err := writeToken(resumeFile, token); err != nil {
				return nil, err
			}
			logger.Info("transfer paused",
				"resume_file", resumeFile,
				"completed", humanize.IBytes(uint64(token.CompletedBytes())),
			)
			return nil, errors.ErrPaused
		}
	}
}

// watchDirectory renders the aggregate progress of mt until it ends. An
// interrupt cancels every file transfer.
func watchDirectory(w io.Writer, logger *slog.Logger, mt *transfer.MultipleTransfer) ([]*transfertypes.Result, error) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-mt.Done():
			fmt.Fprintf(w, "\r%s\n", formatProgress(mt.Progress(), time.Since(started)))
			return mt.Wait(context.Background())
		case <-ticker.C:
			fmt.Fprintf(w, "\r%s", formatProgress(mt.Progress(), time.Since(started)))
		case <-sigs:
			logger.Warn("interrupted, canceling directory transfer")
			mt.Cancel()
		}
	}
}

func readToken(path string) (*transfertypes.ResumeToken, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resume file: %w", err)
	}
	return transfertypes.UnmarshalResumeToken(data)
}

func writeToken(path string, token *transfertypes.ResumeToken) error {
	data, err := token.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write resume file: %w", err)
	}
	return nil
}
