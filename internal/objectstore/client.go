// Package objectstore is a thin S3-compatible blob client for the uploads
// and reports buckets. Keys are unique per dataset by construction, so
// concurrent writers for the same key never exist.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// Config holds object store connection configuration
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// Client wraps the S3 API for put/get by (bucket, key)
type Client struct {
	s3     *s3.Client
	logger *slog.Logger
}

// NewClient creates a new object store client. A non-empty endpoint points
// the client at an S3-compatible service such as MinIO.
func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	logger.Info("Object store client initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("region", cfg.Region),
	)

	return &Client{s3: client, logger: logger}, nil
}

// Put uploads a blob and returns its etag
func (c *Client) Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error) {
	out, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		c.logger.Error("Failed to put object",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return "", fmt.Errorf("%w: put %s/%s: %v", domain.ErrObjectStoreUnavailable, bucket, key, err)
	}

	etag := strings.Trim(aws.ToString(out.ETag), `"`)

	c.logger.Debug("Object stored",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("size_bytes", len(body)),
		slog.String("etag", etag),
	)
	return etag, nil
}

// Get downloads a blob
func (c *Client) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		c.logger.Error("Failed to get object",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: get %s/%s: %v", domain.ErrObjectStoreUnavailable, bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s/%s: %v", domain.ErrObjectStoreUnavailable, bucket, key, err)
	}
	return body, nil
}

// EnsureBucket creates the bucket if it does not exist yet
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("%w: head bucket %s: %v", domain.ErrObjectStoreUnavailable, bucket, err)
	}

	_, err = c.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("%w: create bucket %s: %v", domain.ErrObjectStoreUnavailable, bucket, err)
	}

	c.logger.Info("Bucket created",
		slog.String("bucket", bucket),
	)
	return nil
}
