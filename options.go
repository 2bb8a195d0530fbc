// Package transfer provides functional options for configuring the manager
// and individual transfers.
// These options follow the functional options pattern for clean, composable configuration.
package transfer

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/transfertypes"
)

// WithPoolSize sets the number of workers shared by all transfers of the manager.
// Default is 10 workers.
func WithPoolSize(size int) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		if size > 0 {
			c.PoolSize = size
		}
	}
}

// WithDefaultPartSize sets the part size used by transfers that do not set their own.
// Default is 8MB.
func WithDefaultPartSize(partSize int64) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithDefaultConcurrency sets how many parts of one transfer may be in flight
// when the transfer does not set its own limit.
// Default is 5.
func WithDefaultConcurrency(concurrency int) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithPartLimits overrides the part size and part count limits of the object store.
// Defaults are the S3 limits (5MiB, 5GiB, 10000 parts).
func WithPartLimits(limits transfertypes.PartLimits) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		c.Limits = limits
	}
}

// WithLogger sets the structured logger. Logging is discarded by default.
func WithLogger(logger *slog.Logger) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		c.Logger = logger
	}
}

// WithFilesystem sets the filesystem used for file uploads, download
// destinations and temporary part artifacts.
// Default is the OS filesystem rooted at /.
func WithFilesystem(filesystem billy.Filesystem) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		c.Filesystem = filesystem
	}
}

// WithMetrics registers transfer and pool metrics on reg.
func WithMetrics(reg prometheus.Registerer) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		c.Registerer = reg
	}
}

// WithRateLimit caps the rate of part requests across all transfers of the
// manager. A zero rate disables limiting.
func WithRateLimit(requestsPerSecond float64, burst int) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		c.RequestsPerSecond = requestsPerSecond
		c.RequestBurst = burst
	}
}

// WithManagerListener registers a listener that receives the events of every transfer.
func WithManagerListener(l transfertypes.Listener, mode transfertypes.DeliveryMode) transfertypes.Option {
	return func(c *transfertypes.ManagerConfig) {
		if l != nil {
			c.Listeners = append(c.Listeners, transfertypes.ListenerRegistration{Listener: l, Mode: mode})
		}
	}
}

// WithPartSize sets the part size of a transfer.
// Must be at least the minimum part size of the object store.
func WithPartSize(partSize int64) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithConcurrency caps the number of parts of a transfer that are in flight at once.
func WithConcurrency(concurrency int) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithListener registers a progress listener for a transfer.
func WithListener(l transfertypes.Listener, mode transfertypes.DeliveryMode) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		if l != nil {
			c.Listeners = append(c.Listeners, transfertypes.ListenerRegistration{Listener: l, Mode: mode})
		}
	}
}

// WithResumeToken continues a paused transfer. The token's part size
// replaces any configured part size.
func WithResumeToken(token *transfertypes.ResumeToken) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		c.ResumeToken = token
	}
}

// WithContentType sets the content type of an uploaded object.
// File uploads detect it when unset.
func WithContentType(contentType string) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata sets user metadata of an uploaded object.
func WithMetadata(metadata map[string]string) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		if c.Metadata == nil {
			c.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
}

// WithObjectSize supplies the size of the object to download, which skips
// the HEAD request.
func WithObjectSize(size int64) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		c.ObjectSize = size
	}
}

// WithInclude limits directory transfers to paths matching one of the glob patterns.
func WithInclude(patterns ...string) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		c.IncludePatterns = append(c.IncludePatterns, patterns...)
	}
}

// WithExclude skips paths matching any of the glob patterns in directory transfers.
func WithExclude(patterns ...string) transfertypes.TransferOption {
	return func(c *transfertypes.TransferOptionConfig) {
		c.ExcludePatterns = append(c.ExcludePatterns, patterns...)
	}
}
