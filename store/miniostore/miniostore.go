// Package miniostore implements store.ObjectStore with the MinIO Go client.
//
// It talks to any S3 compatible server through minio-go's low level Core API,
// which exposes the multipart primitives directly.
package miniostore

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// CoreAPI is the subset of minio.Core used by Store.
type CoreAPI interface {
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(
		ctx context.Context,
		bucket, object, uploadID string,
		partID int,
		data io.Reader,
		size int64,
		opts minio.PutObjectPartOptions,
	) (minio.ObjectPart, error)
	CompleteMultipartUpload(
		ctx context.Context,
		bucket, object, uploadID string,
		parts []minio.CompletePart,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
	GetObject(
		ctx context.Context,
		bucket, object string,
		opts minio.GetObjectOptions,
	) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	PutObject(
		ctx context.Context,
		bucket, object string,
		data io.Reader,
		size int64,
		md5Base64, sha256Hex string,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	ListRecursive(ctx context.Context, bucket, prefix string) <-chan minio.ObjectInfo
}

// core adapts *minio.Core to CoreAPI. Core shadows the channel based
// ListObjects of the embedded Client, so listing goes through the client.
type core struct {
	*minio.Core
}

func (c core) ListRecursive(ctx context.Context, bucket, prefix string) <-chan minio.ObjectInfo {
	return c.Client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
}

// Config holds connection settings for a MinIO or S3 compatible endpoint.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Secure          bool
	MaxRetries      int
}

// Store is a MinIO implementation of store.ObjectStore.
type Store struct {
	client CoreAPI
}

var _ store.ObjectStore = (*Store)(nil)

// New connects to the endpoint described by cfg.
func New(cfg Config) (*Store, error) {
	c, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
		MaxRetries:   cfg.MaxRetries,
	})
	if err != nil {
		return nil, errors.NewError("newMinioStore", err).WithKind(errors.KindInvalidInput)
	}
	return NewWithClient(core{Core: c}), nil
}

// NewWithClient creates a store around an existing CoreAPI implementation.
func NewWithClient(client CoreAPI) *Store {
	return &Store{client: client}
}

// InitiateMultipartUpload creates a new multipart upload.
func (s *Store) InitiateMultipartUpload(
	ctx context.Context,
	bucket, key string,
	input store.UploadInput,
) (string, error) {
	id, err := s.client.NewMultipartUpload(ctx, bucket, key, putOptions(input))
	if err != nil {
		return "", wrap("createMultipartUpload", bucket, key, err)
	}
	return id, nil
}

// UploadPart uploads a single part.
func (s *Store) UploadPart(
	ctx context.Context,
	bucket, key, uploadID string,
	partNumber int,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	part, err := s.client.PutObjectPart(ctx, bucket, key, uploadID, partNumber, body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", wrap("uploadPart", bucket, key, err).WithPart(partNumber)
	}
	return part.ETag, nil
}

// CompleteMultipartUpload completes the multipart upload.
func (s *Store) CompleteMultipartUpload(
	ctx context.Context,
	bucket, key, uploadID string,
	parts []store.CompletedPart,
) (store.ObjectInfo, error) {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	info, err := s.client.CompleteMultipartUpload(ctx, bucket, key, uploadID, completed, minio.PutObjectOptions{})
	if err != nil {
		return store.ObjectInfo{}, wrap("completeMultipartUpload", bucket, key, err)
	}
	return fromUploadInfo(key, info), nil
}

// AbortMultipartUpload aborts the multipart upload.
func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	if err := s.client.AbortMultipartUpload(ctx, bucket, key, uploadID); err != nil {
		return wrap("abortMultipartUpload", bucket, key, err)
	}
	return nil
}

// GetObjectRange fetches an inclusive byte range of the object.
func (s *Store) GetObjectRange(
	ctx context.Context,
	bucket, key string,
	offset, length int64,
) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, errors.NewObjectError("getObjectRange", bucket, key, err).WithKind(errors.KindInvalidInput)
	}

	body, _, _, err := s.client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, wrap("getObjectRange", bucket, key, err)
	}
	return body, nil
}

// PutObject uploads an object in a single request.
func (s *Store) PutObject(
	ctx context.Context,
	bucket, key string,
	body io.ReadSeeker,
	size int64,
	input store.UploadInput,
) (store.ObjectInfo, error) {
	info, err := s.client.PutObject(ctx, bucket, key, body, size, "", "", putOptions(input))
	if err != nil {
		return store.ObjectInfo{}, wrap("putObject", bucket, key, err)
	}
	out := fromUploadInfo(key, info)
	out.ContentType = input.ContentType
	return out, nil
}

// HeadObject returns the object's size and entity tag.
func (s *Store) HeadObject(ctx context.Context, bucket, key string) (store.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return store.ObjectInfo{}, wrap("headObject", bucket, key, err)
	}
	return fromObjectInfo(info), nil
}

// ListObjects lists every object under prefix.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) ([]store.ObjectInfo, error) {
	var objects []store.ObjectInfo
	for info := range s.client.ListRecursive(ctx, bucket, prefix) {
		if info.Err != nil {
			return nil, wrap("listObjects", bucket, "", info.Err)
		}
		objects = append(objects, fromObjectInfo(info))
	}
	return objects, nil
}

func putOptions(input store.UploadInput) minio.PutObjectOptions {
	return minio.PutObjectOptions{
		ContentType:  input.ContentType,
		UserMetadata: input.Metadata,
	}
}

func fromUploadInfo(key string, info minio.UploadInfo) store.ObjectInfo {
	return store.ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		VersionID:    info.VersionID,
		LastModified: info.LastModified,
	}
}

func fromObjectInfo(info minio.ObjectInfo) store.ObjectInfo {
	return store.ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		VersionID:    info.VersionID,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}
}

// wrap converts a MinIO error response into a smithy API error so that the
// error taxonomy classifies both backends by the same S3 error codes.
func wrap(op, bucket, key string, err error) *errors.Error {
	if resp := minio.ToErrorResponse(err); resp.Code != "" {
		apiErr := &smithy.GenericAPIError{Code: resp.Code, Message: resp.Message}
		err = fmt.Errorf("%w: %w", apiErr, err)
	}
	return errors.NewError(op, err).WithBucket(bucket).WithKey(key)
}
