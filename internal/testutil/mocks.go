// Package testutil provides test utilities and fakes for the transfer engine.
// This package is internal and should only be used for testing within this module.
package testutil

import (
	"context"
	"io"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// MockStore is a mock implementation of store.ObjectStore for testing.
// It allows customization of each operation through function fields.
type MockStore struct {
	InitiateMultipartUploadFunc func(ctx context.Context, bucket, key string, input store.UploadInput) (string, error)
	UploadPartFunc              func(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.ReadSeeker, size int64) (string, error)
	CompleteMultipartUploadFunc func(ctx context.Context, bucket, key, uploadID string, parts []store.CompletedPart) (store.ObjectInfo, error)
	AbortMultipartUploadFunc    func(ctx context.Context, bucket, key, uploadID string) error
	GetObjectRangeFunc          func(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error)
	PutObjectFunc               func(ctx context.Context, bucket, key string, body io.ReadSeeker, size int64, input store.UploadInput) (store.ObjectInfo, error)
	HeadObjectFunc              func(ctx context.Context, bucket, key string) (store.ObjectInfo, error)
	ListObjectsFunc             func(ctx context.Context, bucket, prefix string) ([]store.ObjectInfo, error)
}

var _ store.ObjectStore = (*MockStore)(nil)

// InitiateMultipartUpload mocks the initiate operation.
func (m *MockStore) InitiateMultipartUpload(ctx context.Context, bucket, key string, input store.UploadInput) (string, error) {
	if m.InitiateMultipartUploadFunc != nil {
		return m.InitiateMultipartUploadFunc(ctx, bucket, key, input)
	}
	return "mock-upload-id", nil
}

// UploadPart mocks the part upload operation.
func (m *MockStore) UploadPart(
	ctx context.Context,
	bucket, key, uploadID string,
	partNumber int,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	if m.UploadPartFunc != nil {
		return m.UploadPartFunc(ctx, bucket, key, uploadID, partNumber, body, size)
	}
	return "mock-etag", nil
}

// CompleteMultipartUpload mocks the complete operation.
func (m *MockStore) CompleteMultipartUpload(
	ctx context.Context,
	bucket, key, uploadID string,
	parts []store.CompletedPart,
) (store.ObjectInfo, error) {
	if m.CompleteMultipartUploadFunc != nil {
		return m.CompleteMultipartUploadFunc(ctx, bucket, key, uploadID, parts)
	}
	return store.ObjectInfo{Key: key}, nil
}

// AbortMultipartUpload mocks the abort operation.
func (m *MockStore) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if m.AbortMultipartUploadFunc != nil {
		return m.AbortMultipartUploadFunc(ctx, bucket, key, uploadID)
	}
	return nil
}

// GetObjectRange mocks the ranged get operation.
func (m *MockStore) GetObjectRange(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	if m.GetObjectRangeFunc != nil {
		return m.GetObjectRangeFunc(ctx, bucket, key, offset, length)
	}
	return io.NopCloser(io.LimitReader(zeroReader{}, length)), nil
}

// PutObject mocks the single request upload.
func (m *MockStore) PutObject(
	ctx context.Context,
	bucket, key string,
	body io.ReadSeeker,
	size int64,
	input store.UploadInput,
) (store.ObjectInfo, error) {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, bucket, key, body, size, input)
	}
	return store.ObjectInfo{Key: key, Size: size}, nil
}

// HeadObject mocks the metadata lookup.
func (m *MockStore) HeadObject(ctx context.Context, bucket, key string) (store.ObjectInfo, error) {
	if m.HeadObjectFunc != nil {
		return m.HeadObjectFunc(ctx, bucket, key)
	}
	return store.ObjectInfo{Key: key}, nil
}

// ListObjects mocks the listing operation.
func (m *MockStore) ListObjects(ctx context.Context, bucket, prefix string) ([]store.ObjectInfo, error) {
	if m.ListObjectsFunc != nil {
		return m.ListObjectsFunc(ctx, bucket, prefix)
	}
	return nil, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
