package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/transfer"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store/miniostore"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store/s3store"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// options is the resolved command configuration.
type options struct {
	Backend     string
	Endpoint    string
	Region      string
	AccessKey   string
	SecretKey   string
	PathStyle   bool
	Insecure    bool
	MaxAttempts int

	PartSize    int64
	Concurrency int
	PoolSize    int
	RateLimit   float64

	LogLevel   string
	ResumeFile string
	Include    []string
	Exclude    []string
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "xfer",
		Short: "xfer - multipart object transfers",
		Long: `xfer uploads files and directories to S3 compatible object stores and
downloads them back, splitting large objects into parts transferred concurrently.

Interrupting a transfer cancels it. With --resume-file the transfer is paused
instead and can be continued later by running the same command again.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd, v)
		},
	}

	f := rootCmd.PersistentFlags()
	addPersistentFlags(f)
	_ = v.BindPFlags(f)

	rootCmd.AddCommand(newUploadCommand(v), newDownloadCommand(v))
	return rootCmd
}

// addPersistentFlags declares the flags shared by every command.
func addPersistentFlags(f *pflag.FlagSet) {
	f.String("config", "", "Path to a config file (default ./xfer.yaml)")

	// Object store
	f.String("backend", "s3", "Object store client: s3 or minio")
	f.String("endpoint", "", "Custom endpoint URL for S3 compatible services")
	f.String("region", "", "Region of the bucket")
	f.String("access-key", "", "Static access key (default credential chain when empty)")
	f.String("secret-key", "", "Static secret key")
	f.Bool("path-style", false, "Use path-style bucket addressing")
	f.Bool("insecure", false, "Use plain HTTP for the minio backend")
	f.Int("max-attempts", 3, "Attempts per request, including the first one")

	// Transfer tuning
	f.String("part-size", "8MiB", "Part size, e.g. 16MiB")
	f.Int("concurrency", transfer.DefaultConcurrency, "Parts in flight per transfer")
	f.Int("pool-size", transfer.DefaultPoolSize, "Workers shared by all transfers")
	f.Float64("rate-limit", 0, "Maximum part requests per second (0 = unlimited)")

	f.String("log-level", "info", "Log level: debug, info, warn or error")
	f.String("resume-file", "", "Pause on interrupt and store the resume token in this file; resume from it when it exists")
	f.StringSlice("include", nil, "Glob patterns of files to include in directory transfers")
	f.StringSlice("exclude", nil, "Glob patterns of files to exclude from directory transfers")
}

// loadConfig reads the config file and XFER_ environment variables.
func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix("XFER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("xfer")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

func loadOptions(cmd *cobra.Command, v *viper.Viper) (options, error) {
	fl := NewFlagLoader(cmd, v)

	o := options{
		Backend:     fl.String("backend"),
		Endpoint:    fl.String("endpoint"),
		Region:      fl.String("region"),
		AccessKey:   fl.String("access-key"),
		SecretKey:   fl.String("secret-key"),
		PathStyle:   fl.Bool("path-style"),
		Insecure:    fl.Bool("insecure"),
		MaxAttempts: fl.Int("max-attempts"),
		Concurrency: fl.Int("concurrency"),
		PoolSize:    fl.Int("pool-size"),
		RateLimit:   fl.Float64("rate-limit"),
		LogLevel:    fl.String("log-level"),
		ResumeFile:  fl.String("resume-file"),
		Include:     fl.StringSlice("include"),
		Exclude:     fl.StringSlice("exclude"),
	}

	partSize, err := humanize.ParseBytes(fl.String("part-size"))
	if err != nil {
		return options{}, fmt.Errorf("invalid part size: %w", err)
	}
	o.PartSize = int64(partSize)

	switch o.Backend {
	case "s3", "minio":
	default:
		return options{}, fmt.Errorf("unknown backend %q", o.Backend)
	}
	if o.Backend == "minio" && o.Endpoint == "" {
		return options{}, fmt.Errorf("the minio backend needs --endpoint")
	}
	return o, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
	return slog.New(handler), nil
}

func openStore(ctx context.Context, o options) (store.ObjectStore, error) {
	if o.Backend == "minio" {
		return miniostore.New(miniostore.Config{
			Endpoint:        o.Endpoint,
			AccessKeyID:     o.AccessKey,
			SecretAccessKey: o.SecretKey,
			Region:          o.Region,
			Secure:          !o.Insecure,
			MaxRetries:      o.MaxAttempts,
		})
	}

	opts := []s3store.Option{
		s3store.WithMaxAttempts(o.MaxAttempts),
		s3store.WithForcePathStyle(o.PathStyle),
	}
	if o.Region != "" {
		opts = append(opts, s3store.WithRegion(o.Region))
	}
	if o.Endpoint != "" {
		opts = append(opts, s3store.WithEndpoint(o.Endpoint))
	}
	if o.AccessKey != "" {
		opts = append(opts, s3store.WithStaticCredentials(o.AccessKey, o.SecretKey))
	}
	return s3store.New(ctx, opts...)
}

// setup creates the logger, store and manager of a command run.
func setup(cmd *cobra.Command, o options) (*transfer.Manager, *slog.Logger, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), o.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	objects, err := openStore(cmd.Context(), o)
	if err != nil {
		return nil, nil, err
	}

	opts := []transfertypes.Option{
		transfer.WithLogger(logger),
		transfer.WithPoolSize(o.PoolSize),
		transfer.WithDefaultPartSize(o.PartSize),
		transfer.WithDefaultConcurrency(o.Concurrency),
	}
	if o.RateLimit > 0 {
		opts = append(opts, transfer.WithRateLimit(o.RateLimit, o.Concurrency))
	}

	m, err := transfer.New(objects, opts...)
	if err != nil {
		return nil, nil, err
	}
	return m, logger, nil
}

func transferOptions(o options) []transfertypes.TransferOption {
	return []transfertypes.TransferOption{
		transfer.WithInclude(o.Include...),
		transfer.WithExclude(o.Exclude...),
	}
}
