// Package handler implements the HTTP endpoints for dataset upload,
// processing, and report retrieval.
package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/dataset-processor/internal/domain"
	"github.com/cuongbtq/dataset-processor/internal/metrics"
)

// Store is the slice of the metadata store the handlers need
type Store interface {
	CreateDatasetIfNew(ctx context.Context, dataset *domain.Dataset) (*domain.Dataset, bool, error)
	GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error)
	GetDatasetByChecksum(ctx context.Context, checksum string) (*domain.Dataset, error)
	ListDatasetSummaries(ctx context.Context) ([]domain.DatasetSummary, error)
	DatasetSummary(ctx context.Context, datasetID string) (*domain.DatasetSummary, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)
	GetReport(ctx context.Context, datasetID string) (*domain.Report, error)
}

// BlobStore is the slice of the object store the handlers need
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// Enqueuer requests processing for an uploaded dataset
type Enqueuer interface {
	Enqueue(ctx context.Context, datasetID string) (*domain.Job, error)
}

// Pinger reports backend connectivity for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Store          Store
	Blobs          BlobStore
	Enqueuer       Enqueuer
	Metrics        *metrics.Metrics
	DB             Pinger
	UploadsBucket  string
	MaxUploadBytes int64
}
