package transfertypes

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Configuration types for functional options

// ListenerRegistration binds a listener to its delivery mode.
type ListenerRegistration struct {
	Listener Listener
	Mode     DeliveryMode
}

// ManagerConfig holds configuration for the transfer manager.
type ManagerConfig struct {
	PoolSize          int
	PartSize          int64
	Concurrency       int
	Limits            PartLimits
	Logger            *slog.Logger
	Filesystem        billy.Filesystem // Filesystem used for file uploads and download artifacts
	Registerer        prometheus.Registerer
	RequestsPerSecond float64
	RequestBurst      int
	Listeners         []ListenerRegistration
}

// TransferOptionConfig holds configuration for a single transfer.
type TransferOptionConfig struct {
	PartSize        int64
	Concurrency     int
	ContentType     string
	Metadata        map[string]string
	Listeners       []ListenerRegistration
	ResumeToken     *ResumeToken
	ObjectSize      int64 // Known object size for downloads, skips the HEAD request
	IncludePatterns []string
	ExcludePatterns []string
}

// Option is a functional option for configuring the transfer manager.
type (
	Option func(*ManagerConfig)
	// TransferOption is a functional option for configuring a single transfer.
	TransferOption func(*TransferOptionConfig)
)
