// Package s3store implements store.ObjectStore on top of the AWS SDK for Go v2.
//
// Every request goes through the SDK's standard retryer, which absorbs
// throttling, timeouts and 5xx responses up to the configured attempt budget.
package s3store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/store"
)

// Config holds configuration for an S3 backed store.
type Config struct {
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	MaxAttempts     int
	Timeout         time.Duration
	AccessKeyID     string
	SecretAccessKey string
	CustomAWSConfig *aws.Config
}

// Option is a functional option for configuring the S3 store.
type Option func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(c *Config) {
		c.Region = region
	}
}

// WithEndpoint sets a custom S3 endpoint URL.
// This is useful for S3-compatible services or local testing with LocalStack.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
func WithForcePathStyle(forcePathStyle bool) Option {
	return func(c *Config) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithMaxAttempts sets how many times a single request is attempted before
// its error is surfaced. Default is 3.
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		if attempts > 0 {
			c.MaxAttempts = attempts
		}
	}
}

// WithTimeout sets the HTTP client timeout for individual requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithStaticCredentials uses a fixed access key pair instead of the default credential chain.
func WithStaticCredentials(accessKeyID, secretAccessKey string) Option {
	return func(c *Config) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
func WithAWSConfig(cfg *aws.Config) Option {
	return func(c *Config) {
		c.CustomAWSConfig = cfg
	}
}

// Store is an S3 implementation of store.ObjectStore.
type Store struct {
	client S3API
}

var _ store.ObjectStore = (*Store)(nil)

// New creates a store with an AWS S3 client built from opts.
//
// Example:
//
//	st, err := s3store.New(ctx,
//	    s3store.WithRegion("us-west-2"),
//	    s3store.WithMaxAttempts(5),
//	)
func New(ctx context.Context, opts ...Option) (*Store, error) {
	cfg := &Config{
		MaxAttempts: 3,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, errors.NewError("newS3Store", err).WithKind(errors.KindInvalidInput)
	}

	var s3Opts []func(*s3.Options)
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...)), nil
}

// NewWithClient creates a store around an existing S3API implementation.
// This is primarily used for testing with mocked clients.
func NewWithClient(client S3API) *Store {
	return &Store{client: client}
}

func loadAWSConfig(ctx context.Context, cfg *Config) (aws.Config, error) {
	if cfg.CustomAWSConfig != nil {
		return *cfg.CustomAWSConfig, nil
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = cfg.MaxAttempts
			})
		}),
	}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	return awsCfg, nil
}

// InitiateMultipartUpload creates a new multipart upload.
func (s *Store) InitiateMultipartUpload(
	ctx context.Context,
	bucket, key string,
	input store.UploadInput,
) (string, error) {
	params := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if input.ContentType != "" {
		params.ContentType = aws.String(input.ContentType)
	}
	if len(input.Metadata) > 0 {
		params.Metadata = input.Metadata
	}

	output, err := s.client.CreateMultipartUpload(ctx, params)
	if err != nil {
		return "", errors.NewObjectError("createMultipartUpload", bucket, key, err)
	}
	return aws.ToString(output.UploadId), nil
}

// UploadPart uploads a single part.
func (s *Store) UploadPart(
	ctx context.Context,
	bucket, key, uploadID string,
	partNumber int,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	output, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", errors.NewObjectError("uploadPart", bucket, key, err).WithPart(partNumber)
	}
	return aws.ToString(output.ETag), nil
}

// CompleteMultipartUpload completes the multipart upload.
func (s *Store) CompleteMultipartUpload(
	ctx context.Context,
	bucket, key, uploadID string,
	parts []store.CompletedPart,
) (store.ObjectInfo, error) {
	completed := make([]awstypes.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = awstypes.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.PartNumber)),
		}
	}

	output, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return store.ObjectInfo{}, errors.NewObjectError("completeMultipartUpload", bucket, key, err)
	}

	return store.ObjectInfo{
		Key:       key,
		ETag:      trimETag(aws.ToString(output.ETag)),
		VersionID: aws.ToString(output.VersionId),
	}, nil
}

// AbortMultipartUpload aborts the multipart upload.
func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return errors.NewObjectError("abortMultipartUpload", bucket, key, err)
	}
	return nil
}

// GetObjectRange fetches an inclusive byte range of the object.
func (s *Store) GetObjectRange(
	ctx context.Context,
	bucket, key string,
	offset, length int64,
) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		return nil, errors.NewObjectError("getObjectRange", bucket, key, err)
	}
	return output.Body, nil
}

// PutObject uploads an object in a single request.
func (s *Store) PutObject(
	ctx context.Context,
	bucket, key string,
	body io.ReadSeeker,
	size int64,
	input store.UploadInput,
) (store.ObjectInfo, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if input.ContentType != "" {
		params.ContentType = aws.String(input.ContentType)
	}
	if len(input.Metadata) > 0 {
		params.Metadata = input.Metadata
	}

	output, err := s.client.PutObject(ctx, params)
	if err != nil {
		return store.ObjectInfo{}, errors.NewObjectError("putObject", bucket, key, err)
	}

	return store.ObjectInfo{
		Key:         key,
		Size:        size,
		ETag:        trimETag(aws.ToString(output.ETag)),
		VersionID:   aws.ToString(output.VersionId),
		ContentType: input.ContentType,
	}, nil
}

// HeadObject returns the object's size and entity tag.
func (s *Store) HeadObject(ctx context.Context, bucket, key string) (store.ObjectInfo, error) {
	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return store.ObjectInfo{}, errors.NewObjectError("headObject", bucket, key, err)
	}

	return store.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(output.ContentLength),
		ETag:         trimETag(aws.ToString(output.ETag)),
		VersionID:    aws.ToString(output.VersionId),
		ContentType:  aws.ToString(output.ContentType),
		LastModified: aws.ToTime(output.LastModified),
	}, nil
}

// ListObjects lists every object under prefix, following continuation tokens.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix string) ([]store.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	var objects []store.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.NewError("listObjects", err).WithBucket(bucket)
		}
		for _, obj := range page.Contents {
			objects = append(objects, store.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         trimETag(aws.ToString(obj.ETag)),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}
