// Package worker consumes job messages from RabbitMQ and runs the dataset
// profiling pipeline: fetch the uploaded blob, parse it, compute statistics
// and anomalies, store the report, and finalize the job.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/dataset-processor/internal/domain"
	"github.com/cuongbtq/dataset-processor/internal/metrics"
	"github.com/cuongbtq/dataset-processor/internal/parser"
	"github.com/cuongbtq/dataset-processor/internal/storage"
	"github.com/cuongbtq/dataset-processor/shared/rabbitmq"
)

// Storage is the slice of the metadata store the worker needs
type Storage interface {
	GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error)
	MarkDatasetProcessing(ctx context.Context, datasetID string) (bool, error)
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	SetJobProgress(ctx context.Context, jobID string, progress int) error
	MarkJobRetrying(ctx context.Context, jobID, errMsg string) error
	FinalizeJobSuccess(ctx context.Context, p storage.FinalizeSuccessParams) error
	FinalizeJobFailure(ctx context.Context, jobID, datasetID, errMsg string) error
}

// BlobStore is the slice of the object store the worker needs
type BlobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Storage         Storage
	Blobs           BlobStore
	RabbitClient    *rabbitmq.Client
	Metrics         *metrics.Metrics
	WorkerID        string
	Concurrency     int
	PrefetchCount   int
	JobTimeout      time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffCap time.Duration
	ReportsBucket   string
	ParseLimits     parser.Limits
}

// Worker represents the background job worker
type Worker struct {
	logger          *slog.Logger
	storage         Storage
	blobs           BlobStore
	rabbitClient    *rabbitmq.Client
	metrics         *metrics.Metrics
	workerID        string
	concurrency     int
	prefetchCount   int
	jobTimeout      time.Duration
	maxRetries      int
	retryBackoff    time.Duration
	retryBackoffCap time.Duration
	reportsBucket   string
	parseLimits     parser.Limits
	jobsChan        chan *domain.JobMessage
	wg              sync.WaitGroup
	stopChan        chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:          cfg.Logger,
		storage:         cfg.Storage,
		blobs:           cfg.Blobs,
		rabbitClient:    cfg.RabbitClient,
		metrics:         cfg.Metrics,
		workerID:        cfg.WorkerID,
		concurrency:     cfg.Concurrency,
		prefetchCount:   cfg.PrefetchCount,
		jobTimeout:      cfg.JobTimeout,
		maxRetries:      cfg.MaxRetries,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffCap: cfg.RetryBackoffCap,
		reportsBucket:   cfg.ReportsBucket,
		parseLimits:     cfg.ParseLimits,
		jobsChan:        make(chan *domain.JobMessage, cfg.Concurrency),
		stopChan:        make(chan struct{}),
	}
}

// Start begins consuming and processing jobs. It blocks until the context is
// canceled or the broker delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
