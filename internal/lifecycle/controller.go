// Package lifecycle owns the enqueue side of dataset processing: deciding
// whether a dataset needs a new job, creating the job row, and handing the
// job message to the broker.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// Store is the slice of the metadata store the controller needs
type Store interface {
	GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error)
	GetReport(ctx context.Context, datasetID string) (*domain.Report, error)
	ActiveJob(ctx context.Context, datasetID string) (*domain.Job, error)
	LatestJob(ctx context.Context, datasetID string) (*domain.Job, error)
	CreateQueuedJob(ctx context.Context, datasetID string) (*domain.Job, bool, error)
	CreateSyntheticSuccessJob(ctx context.Context, datasetID string) (*domain.Job, error)
	SetJobTaskID(ctx context.Context, jobID, taskID string) error
	MarkEnqueueFailure(ctx context.Context, jobID, errMsg string) error
}

// Publisher delivers job messages to the broker and returns the broker's
// correlation token for the delivery.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) (string, error)
}

// Controller coordinates job creation and broker publishing
type Controller struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// NewController creates a new lifecycle controller
func NewController(store Store, publisher Publisher, logger *slog.Logger) *Controller {
	return &Controller{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Enqueue requests processing for a dataset. The call is idempotent: a
// dataset with an active job gets that job back instead of a second one,
// and a dataset already done with a report gets its latest terminal job
// (or a synthetic success job when no job history exists).
func (c *Controller) Enqueue(ctx context.Context, datasetID string) (*domain.Job, error) {
	dataset, err := c.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	// Fast path: an active job already occupies the dataset's slot.
	active, err := c.store.ActiveJob(ctx, datasetID)
	if err == nil {
		c.logger.Info("Enqueue joined active job",
			slog.String("dataset_id", datasetID),
			slog.String("job_id", active.ID),
		)
		return active, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if dataset.Status == domain.DatasetStatusDone {
		if job, err := c.doneDatasetJob(ctx, datasetID); err != nil || job != nil {
			return job, err
		}
	}

	job, created, err := c.store.CreateQueuedJob(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the insert race; the winner's job serves this request too.
		return job, nil
	}

	body, err := json.Marshal(domain.JobMessage{DatasetID: datasetID, JobID: job.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal job message: %w", err)
	}

	taskID, err := c.publisher.PublishWithRetry(ctx, body, "application/json")
	if err != nil {
		c.logger.Error("Failed to publish job message",
			slog.String("dataset_id", datasetID),
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		if failErr := c.store.MarkEnqueueFailure(ctx, job.ID, domain.EnqueueFailureMessage); failErr != nil {
			c.logger.Error("Failed to finalize unpublished job",
				slog.String("job_id", job.ID),
				slog.Any("error", failErr),
			)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	if err := c.store.SetJobTaskID(ctx, job.ID, taskID); err != nil {
		// The message is already in flight; the worker does not need the
		// task id, so a miss here only loses the correlation token.
		c.logger.Warn("Failed to record task id",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	} else {
		job.TaskID = &taskID
	}

	c.logger.Info("Job enqueued",
		slog.String("dataset_id", datasetID),
		slog.String("job_id", job.ID),
		slog.String("task_id", taskID),
	)
	return job, nil
}

// doneDatasetJob resolves the enqueue answer for a dataset already done with
// a report: its latest terminal job, or a synthetic success job when the
// dataset reached done without job history. Returns (nil, nil) when the
// done state lacks a report and a real re-run should proceed.
func (c *Controller) doneDatasetJob(ctx context.Context, datasetID string) (*domain.Job, error) {
	if _, err := c.store.GetReport(ctx, datasetID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	latest, err := c.store.LatestJob(ctx, datasetID)
	if err == nil {
		if domain.IsTerminalJobState(latest.State) {
			return latest, nil
		}
		// Active jobs are caught by the fast path; a non-terminal job
		// surfacing here means it was created in between, join it.
		return latest, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return c.store.CreateSyntheticSuccessJob(ctx, datasetID)
}
