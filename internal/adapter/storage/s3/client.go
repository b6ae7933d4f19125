// Package s3 implements the object-store port on any S3-compatible backend
// (MinIO, AWS, R2) via minio-go.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mintcal/mintcal/internal/domain"
)

// Client wraps a minio client pinned to one bucket. Credentials are held by
// the transport only and never logged.
type Client struct {
	mc     *minio.Client
	bucket string
}

// New builds a client for the given S3-compatible endpoint.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Client, error) {
	if endpoint == "" || bucket == "" {
		return nil, fmt.Errorf("op=s3.new: endpoint and bucket required: %w", domain.ErrInvalidArgument)
	}
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("op=s3.new: %w", err)
	}
	return &Client{mc: mc, bucket: bucket}, nil
}

// EnsureBucket creates the bucket when missing. Called once at startup.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("op=s3.ensure_bucket: %w", classify(err))
	}
	if exists {
		return nil
	}
	if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("op=s3.ensure_bucket: %w", classify(err))
	}
	slog.Info("object store bucket created", slog.String("bucket", c.bucket))
	return nil
}

// Ping probes the bucket; used by readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.mc.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("op=s3.ping: %w", classify(err))
	}
	return nil
}

// Put stores body under key, sniffing the content type when none is given.
func (c *Client) Put(ctx context.Context, key string, body []byte, contentType string) error {
	tracer := otel.Tracer("storage.s3")
	ctx, span := tracer.Start(ctx, "s3.Put")
	defer span.End()
	span.SetAttributes(attribute.String("object.key", key), attribute.Int("object.size", len(body)))

	if contentType == "" {
		contentType = mimetype.Detect(body).String()
	}
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("op=s3.put: %w", classify(err))
	}
	return nil
}

// SignedGet mints a presigned download URL for key. A non-positive ttl
// falls back to domain.DefaultSignedURLTTL.
func (c *Client) SignedGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	tracer := otel.Tracer("storage.s3")
	ctx, span := tracer.Start(ctx, "s3.SignedGet")
	defer span.End()

	if ttl <= 0 {
		ttl = domain.DefaultSignedURLTTL
	}
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("op=s3.signed_get: %w", classify(err))
	}
	return u.String(), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	tracer := otel.Tracer("storage.s3")
	ctx, span := tracer.Start(ctx, "s3.Delete")
	defer span.End()

	if err := c.mc.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("op=s3.delete: %w", classify(err))
	}
	return nil
}

// Exists reports whether key is present, distinguishing a missing object
// from a transport failure.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	tracer := otel.Tracer("storage.s3")
	ctx, span := tracer.Start(ctx, "s3.Exists")
	defer span.End()

	_, err := c.mc.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("op=s3.exists: %w", classify(err))
}

// classify wraps retryable failures with domain.ErrTransient so handlers can
// pick a retry policy without importing this package. Client errors (4xx)
// pass through unwrapped and read as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if resp.StatusCode >= 500 || resp.StatusCode == 429 || resp.StatusCode == 408 {
			return fmt.Errorf("%w: %w", domain.ErrTransient, err)
		}
		return err
	}
	// No HTTP response at all means the transport failed.
	return fmt.Errorf("%w: %w", domain.ErrTransient, err)
}
