// Package store defines the object storage contract the transfer engine drives.
//
// Implementations issue exactly one logical request per call and are expected
// to apply their own bounded retry policy before surfacing an error. The
// engine never retries a call itself.
package store

import (
	"context"
	"io"
	"time"
)

// ObjectStore is the set of object storage operations used by this module.
// This interface allows for mocking in tests and for alternative backends.
type ObjectStore interface {
	// InitiateMultipartUpload starts a multipart upload and returns its identifier
	InitiateMultipartUpload(ctx context.Context, bucket, key string, input UploadInput) (string, error)

	// UploadPart uploads one part and returns its completion token
	UploadPart(
		ctx context.Context,
		bucket, key, uploadID string,
		partNumber int,
		body io.ReadSeeker,
		size int64,
	) (string, error)

	// CompleteMultipartUpload assembles the object from parts listed in ascending order
	CompleteMultipartUpload(
		ctx context.Context,
		bucket, key, uploadID string,
		parts []CompletedPart,
	) (ObjectInfo, error)

	// AbortMultipartUpload discards a multipart upload and its uploaded parts
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error

	// GetObjectRange returns length bytes of the object starting at offset
	GetObjectRange(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error)

	// PutObject uploads an object in a single request
	PutObject(
		ctx context.Context,
		bucket, key string,
		body io.ReadSeeker,
		size int64,
		input UploadInput,
	) (ObjectInfo, error)

	// HeadObject returns the object's metadata
	HeadObject(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// ListObjects returns every object whose key starts with prefix
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// UploadInput carries object attributes set when an upload starts.
type UploadInput struct {
	ContentType string
	Metadata    map[string]string
}

// CompletedPart identifies an uploaded part when completing a multipart upload.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	VersionID    string
	ContentType  string
	LastModified time.Time
}
