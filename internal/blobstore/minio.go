// Package blobstore stores uploaded files and result documents in an
// S3-compatible object store and mints presigned URLs for direct access.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultUploadPrefix      = "user-uploads"
	defaultResultPrefix      = "processed-files"
	defaultUploadURLExpiry   = time.Hour
	defaultDownloadURLExpiry = 5 * time.Minute

	resultContentType = "application/json"
)

// ErrObjectNotFound is returned when the requested object does not exist
var ErrObjectNotFound = errors.New("object not found")

type Opts func(c *config)

type config struct {
	endpoint          string
	region            string
	accessKey         string
	secretAccessKey   string
	useSSL            bool
	uploadBucket      string
	resultBucket      string
	uploadPrefix      string
	resultPrefix      string
	uploadURLExpiry   time.Duration
	downloadURLExpiry time.Duration
}

func newConfig(opts ...Opts) *config {
	cfg := &config{
		uploadPrefix:      defaultUploadPrefix,
		resultPrefix:      defaultResultPrefix,
		uploadURLExpiry:   defaultUploadURLExpiry,
		downloadURLExpiry: defaultDownloadURLExpiry,
	}

	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// UploadTarget is where a client uploads a file before submitting a job
type UploadTarget struct {
	UploadURL string
	SourceKey string
	ExpiresAt time.Time
}

// Client reads and writes job objects in MinIO or S3
type Client struct {
	cfg    *config
	client *minio.Client
	logger *slog.Logger
}

// NewClient creates a new object store client
func NewClient(logger *slog.Logger, opts ...Opts) (*Client, error) {
	cfg := newConfig(opts...)
	if cfg.uploadBucket == "" || cfg.resultBucket == "" {
		return nil, fmt.Errorf("upload and result buckets are required")
	}

	minioClient, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
		Region: cfg.region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	logger.Info("Object store client initialized",
		slog.String("endpoint", cfg.endpoint),
		slog.String("upload_bucket", cfg.uploadBucket),
		slog.String("result_bucket", cfg.resultBucket),
	)

	return &Client{cfg: cfg, client: minioClient, logger: logger}, nil
}

// EnsureBuckets creates the upload and result buckets when missing
func (c *Client) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{c.cfg.uploadBucket, c.cfg.resultBucket} {
		exists, err := c.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.cfg.region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		c.logger.Info("Bucket created", slog.String("bucket", bucket))
	}
	return nil
}

// PresignUpload issues a presigned PUT URL for a new upload of fileName
func (c *Client) PresignUpload(ctx context.Context, fileName string) (*UploadTarget, error) {
	key := UploadKey(c.cfg.uploadPrefix, fileName)

	u, err := c.client.PresignedPutObject(ctx, c.cfg.uploadBucket, key, c.cfg.uploadURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	return &UploadTarget{
		UploadURL: u.String(),
		SourceKey: key,
		ExpiresAt: time.Now().Add(c.cfg.uploadURLExpiry).UTC(),
	}, nil
}

// PresignResultDownload issues a presigned GET URL for a result document
func (c *Client) PresignResultDownload(ctx context.Context, resultKey string) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, c.cfg.resultBucket, resultKey, c.cfg.downloadURLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign result download: %w", err)
	}
	return u.String(), nil
}

// OpenUpload opens an uploaded file for streaming
func (c *Client) OpenUpload(ctx context.Context, sourceKey string) (io.ReadCloser, error) {
	object, err := c.client.GetObject(ctx, c.cfg.uploadBucket, sourceKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err, sourceKey)
	}

	// GetObject is lazy; Stat surfaces a missing key before parsing starts
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, translateError(err, sourceKey)
	}

	return object, nil
}

// PutResult writes a result document under resultKey, replacing any previous copy
func (c *Client) PutResult(ctx context.Context, resultKey string, data []byte) error {
	_, err := c.client.PutObject(ctx, c.cfg.resultBucket, resultKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: resultContentType})
	if err != nil {
		return fmt.Errorf("failed to upload result %s: %w", resultKey, err)
	}

	c.logger.Debug("Result document uploaded",
		slog.String("result_key", resultKey),
		slog.Int("size", len(data)),
	)
	return nil
}

// ResultKey derives the result object key for a job
func (c *Client) ResultKey(jobID string) string {
	return ResultKey(c.cfg.resultPrefix, jobID)
}

// HealthCheck verifies the upload bucket is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.BucketExists(ctx, c.cfg.uploadBucket); err != nil {
		return fmt.Errorf("object store health check failed: %w", err)
	}
	return nil
}

func translateError(err error, key string) error {
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return fmt.Errorf("failed to open object %s: %w", key, err)
}

func WithEndpoint(endpoint string) Opts {
	return func(c *config) {
		c.endpoint = endpoint
	}
}

func WithRegion(region string) Opts {
	return func(c *config) {
		c.region = region
	}
}

func WithAccessKey(accessKey string) Opts {
	return func(c *config) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) Opts {
	return func(c *config) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) Opts {
	return func(c *config) {
		c.useSSL = useSSL
	}
}

func WithBuckets(uploadBucket, resultBucket string) Opts {
	return func(c *config) {
		c.uploadBucket = uploadBucket
		c.resultBucket = resultBucket
	}
}

func WithPrefixes(uploadPrefix, resultPrefix string) Opts {
	return func(c *config) {
		if uploadPrefix != "" {
			c.uploadPrefix = uploadPrefix
		}
		if resultPrefix != "" {
			c.resultPrefix = resultPrefix
		}
	}
}

func WithURLExpiry(upload, download time.Duration) Opts {
	return func(c *config) {
		if upload > 0 {
			c.uploadURLExpiry = upload
		}
		if download > 0 {
			c.downloadURLExpiry = download
		}
	}
}
