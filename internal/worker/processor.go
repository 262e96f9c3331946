package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/dataset-processor/internal/domain"
	"github.com/cuongbtq/dataset-processor/internal/parser"
	"github.com/cuongbtq/dataset-processor/internal/profiler"
	"github.com/cuongbtq/dataset-processor/internal/storage"
)

// Progress milestones written as the pipeline advances. The claim itself
// writes 5 and the success finalize writes 100.
const (
	progressParsed    = 25
	progressStats     = 60
	progressAnomalies = 85
)

// processJob drives one delivery to a recorded outcome. A nil return means
// the job reached a terminal state in the database; ErrJobAlreadyClaimed
// means the delivery was a duplicate and the message is done either way.
// Any other error means no outcome was recorded.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	var lastErr error

	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			w.metrics.JobRetries.Inc()
			if err := w.sleepBackoff(jobCtx, attempt); err != nil {
				lastErr = domain.NewRetryableError(err)
				break
			}
		}

		job, err := w.storage.ClaimJob(jobCtx, msg.JobID)
		if err != nil {
			if errors.Is(err, domain.ErrJobAlreadyClaimed) {
				w.logger.Warn("Job already claimed or terminal, dropping delivery",
					slog.String("job_id", msg.JobID),
					slog.Int("attempt", attempt),
				)
				return err
			}
			lastErr = err
			if domain.IsRetryable(err) && attempt < w.maxRetries {
				continue
			}
			break
		}

		err = w.runPipeline(jobCtx, job)
		if err == nil {
			w.metrics.JobsSucceeded.Inc()
			w.logger.Info("Job succeeded",
				slog.String("job_id", job.ID),
				slog.String("dataset_id", job.DatasetID),
			)
			return nil
		}
		lastErr = err

		if !domain.IsRetryable(err) || attempt >= w.maxRetries {
			break
		}

		w.logger.Warn("Transient failure, will retry",
			slog.String("job_id", msg.JobID),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", w.maxRetries),
			slog.String("error", err.Error()),
		)
		if parkErr := w.storage.MarkJobRetrying(jobCtx, msg.JobID, err.Error()); parkErr != nil {
			w.logger.Error("Failed to park job for retry",
				slog.String("job_id", msg.JobID),
				slog.String("error", parkErr.Error()),
			)
			lastErr = parkErr
			break
		}
	}

	// Finalize on the outer context so a job-timeout cannot block
	// recording the failure.
	if finalErr := w.storage.FinalizeJobFailure(ctx, msg.JobID, msg.DatasetID, lastErr.Error()); finalErr != nil {
		w.logger.Error("Failed to finalize job failure",
			slog.String("job_id", msg.JobID),
			slog.String("error", finalErr.Error()),
		)
		return fmt.Errorf("finalize job %s: %w", msg.JobID, finalErr)
	}

	w.metrics.JobsFailed.Inc()
	return nil
}

// runPipeline executes one processing attempt end to end
func (w *Worker) runPipeline(ctx context.Context, job *domain.Job) error {
	dataset, err := w.storage.GetDataset(ctx, job.DatasetID)
	if err != nil {
		return err
	}

	moved, err := w.storage.MarkDatasetProcessing(ctx, job.DatasetID)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("%w: dataset %s not in a processable status", domain.ErrConflict, job.DatasetID)
	}

	payload, err := w.blobs.Get(ctx, dataset.UploadBucket, dataset.UploadKey)
	if err != nil {
		return err
	}

	rows, err := parser.Parse(dataset.ContentType, payload, w.parseLimits)
	if err != nil {
		return err
	}
	if err := w.storage.SetJobProgress(ctx, job.ID, progressParsed); err != nil {
		return err
	}

	stats := profiler.ComputeStats(rows)
	if err := w.storage.SetJobProgress(ctx, job.ID, progressStats); err != nil {
		return err
	}

	anomalies := profiler.ComputeAnomalies(rows, stats, profiler.MaxOutlierExamples)
	if err := w.storage.SetJobProgress(ctx, job.ID, progressAnomalies); err != nil {
		return err
	}

	report := profiler.BuildReport(dataset.ID, time.Now().UTC(), stats, anomalies)
	body, err := report.Marshal()
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := domain.ReportKey(dataset.ID)
	etag, err := w.blobs.Put(ctx, w.reportsBucket, key, body, "application/json")
	if err != nil {
		return err
	}

	var etagPtr *string
	if etag != "" {
		etagPtr = &etag
	}

	return w.storage.FinalizeJobSuccess(ctx, storage.FinalizeSuccessParams{
		JobID:        job.ID,
		DatasetID:    dataset.ID,
		RowCount:     stats.RowCount,
		ReportBucket: w.reportsBucket,
		ReportKey:    key,
		ReportEtag:   etagPtr,
	})
}

// sleepBackoff waits out the exponential backoff before retry n
func (w *Worker) sleepBackoff(ctx context.Context, attempt int) error {
	delay := w.retryBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= w.retryBackoffCap {
			break
		}
	}
	if delay > w.retryBackoffCap {
		delay = w.retryBackoffCap
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
