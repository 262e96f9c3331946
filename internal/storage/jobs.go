package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

const jobColumns = `
	id, dataset_id, task_id, state, progress,
	queued_at, started_at, finished_at, error
`

// activeJobConstraint is the partial unique index guarding the one-active-job
// invariant; its violation is the expected losing side of an enqueue race.
const activeJobConstraint = "uq_jobs_active_dataset"

// CreateQueuedJob inserts a queued job for the dataset. When the partial
// unique index rejects the insert, the dataset's existing active job is
// fetched and returned with created=false.
func (s *Store) CreateQueuedJob(ctx context.Context, datasetID string) (*domain.Job, bool, error) {
	job := &domain.Job{
		ID:        uuid.New().String(),
		DatasetID: datasetID,
		State:     domain.JobStateQueued,
		Progress:  0,
	}

	query := `
		INSERT INTO jobs (id, dataset_id, state, progress)
		VALUES ($1, $2, $3, $4)
		RETURNING queued_at
	`

	err := s.db.QueryRowContext(ctx, query, job.ID, job.DatasetID, job.State, job.Progress).
		Scan(&job.QueuedAt)
	if err == nil {
		s.logger.Info("Queued job created",
			slog.String("job_id", job.ID),
			slog.String("dataset_id", datasetID),
		)
		return job, true, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == activeJobConstraint {
		existing, activeErr := s.ActiveJob(ctx, datasetID)
		if activeErr != nil {
			return nil, false, activeErr
		}
		s.logger.Info("Lost enqueue race, returning existing active job",
			slog.String("job_id", existing.ID),
			slog.String("dataset_id", datasetID),
		)
		return existing, false, nil
	}

	return nil, false, wrapDBErr("create queued job", err)
}

// CreateSyntheticSuccessJob inserts a terminal success job for a dataset that
// reached Done outside the normal pipeline, so clients always get a job
// handle to poll. No broker message exists for it and task_id stays NULL.
func (s *Store) CreateSyntheticSuccessJob(ctx context.Context, datasetID string) (*domain.Job, error) {
	job := &domain.Job{
		ID:        uuid.New().String(),
		DatasetID: datasetID,
		State:     domain.JobStateSuccess,
		Progress:  100,
	}

	query := `
		INSERT INTO jobs (id, dataset_id, state, progress, started_at, finished_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING queued_at, started_at, finished_at
	`

	err := s.db.QueryRowContext(ctx, query, job.ID, job.DatasetID, job.State, job.Progress).
		Scan(&job.QueuedAt, &job.StartedAt, &job.FinishedAt)
	if err != nil {
		return nil, wrapDBErr("create synthetic success job", err)
	}

	s.logger.Info("Synthetic success job created",
		slog.String("job_id", job.ID),
		slog.String("dataset_id", datasetID),
	)
	return job, nil
}

// GetJob retrieves a job by its identifier
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1`, jobColumns)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		return nil, wrapDBErr("get job", err)
	}
	return &job, nil
}

// ListJobs returns all jobs ordered by queue time descending
func (s *Store) ListJobs(ctx context.Context) ([]domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs ORDER BY queued_at DESC, id DESC`, jobColumns)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, wrapDBErr("list jobs", err)
	}
	return jobs, nil
}

// ActiveJob returns the dataset's job in an active state, if any
func (s *Store) ActiveJob(ctx context.Context, datasetID string) (*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE dataset_id = $1 AND state = ANY($2)
		ORDER BY queued_at DESC, id DESC
		LIMIT 1
	`, jobColumns)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, datasetID, pq.Array(domain.ActiveJobStates)); err != nil {
		return nil, wrapDBErr("get active job", err)
	}
	return &job, nil
}

// LatestJob returns the dataset's most recently queued job, if any
func (s *Store) LatestJob(ctx context.Context, datasetID string) (*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE dataset_id = $1
		ORDER BY queued_at DESC, id DESC
		LIMIT 1
	`, jobColumns)

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, datasetID); err != nil {
		return nil, wrapDBErr("get latest job", err)
	}
	return &job, nil
}

// SetJobTaskID stores the broker correlation token after a successful publish
func (s *Store) SetJobTaskID(ctx context.Context, jobID, taskID string) error {
	query := `UPDATE jobs SET task_id = $2 WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, jobID, taskID); err != nil {
		return wrapDBErr("set job task id", err)
	}
	return nil
}

// MarkEnqueueFailure finalizes a queued job whose broker publish failed,
// freeing the active slot so a later enqueue can try again.
func (s *Store) MarkEnqueueFailure(ctx context.Context, jobID, errMsg string) error {
	query := `
		UPDATE jobs
		SET state = $2, error = $3, finished_at = now()
		WHERE id = $1 AND state = $4
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStateFailure, errMsg, domain.JobStateQueued)
	if err != nil {
		return wrapDBErr("mark enqueue failure", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return wrapDBErr("mark enqueue failure", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: job %s not queued", domain.ErrConflict, jobID)
	}

	s.logger.Warn("Job finalized after enqueue failure",
		slog.String("job_id", jobID),
		slog.String("error", errMsg),
	)
	return nil
}

// ClaimJob moves a queued or retrying job into started via a conditional
// update. A miss means the job is terminal or already started by another
// delivery, which is how duplicate broker deliveries are deduplicated.
// started_at survives retries and progress never moves backwards.
func (s *Store) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := fmt.Sprintf(`
		UPDATE jobs
		SET state = $2,
		    progress = GREATEST(progress, $3),
		    started_at = COALESCE(started_at, now()),
		    error = NULL
		WHERE id = $1 AND state = ANY($4)
		RETURNING %s
	`, jobColumns)

	claimable := []string{domain.JobStateQueued, domain.JobStateRetrying}

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID, domain.JobStateStarted, progressClaimed, pq.Array(claimable))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s", domain.ErrJobAlreadyClaimed, jobID)
		}
		return nil, wrapDBErr("claim job", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("dataset_id", job.DatasetID),
	)
	return &job, nil
}

const progressClaimed = 5

// SetJobProgress advances a started job to a progress milestone. The update
// is conditional on the started state and non-decreasing progress, so stale
// writers cannot roll the value back.
func (s *Store) SetJobProgress(ctx context.Context, jobID string, progress int) error {
	query := `
		UPDATE jobs
		SET progress = $2
		WHERE id = $1 AND state = $3 AND progress <= $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, progress, domain.JobStateStarted)
	if err != nil {
		return wrapDBErr("set job progress", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return wrapDBErr("set job progress", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: job %s not started at progress <= %d", domain.ErrConflict, jobID, progress)
	}
	return nil
}

// MarkJobRetrying parks a started job between transient-failure attempts
func (s *Store) MarkJobRetrying(ctx context.Context, jobID, errMsg string) error {
	query := `
		UPDATE jobs
		SET state = $2, error = $3
		WHERE id = $1 AND state = $4
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStateRetrying, errMsg, domain.JobStateStarted)
	if err != nil {
		return wrapDBErr("mark job retrying", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return wrapDBErr("mark job retrying", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: job %s not started", domain.ErrConflict, jobID)
	}

	s.logger.Warn("Job marked retrying",
		slog.String("job_id", jobID),
		slog.String("error", errMsg),
	)
	return nil
}

// FinalizeSuccessParams collects everything the success finalize writes.
type FinalizeSuccessParams struct {
	JobID        string
	DatasetID    string
	RowCount     int64
	ReportBucket string
	ReportKey    string
	ReportEtag   *string
}

// FinalizeJobSuccess upserts the report row, completes the job, and marks
// the dataset done in one transaction, preserving the invariant that a
// report row exists iff the dataset is Done iff the job is Success.
func (s *Store) FinalizeJobSuccess(ctx context.Context, p FinalizeSuccessParams) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapDBErr("begin finalize success", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, dataset_id, report_bucket, report_key, report_etag)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (dataset_id) DO UPDATE SET
			report_bucket = EXCLUDED.report_bucket,
			report_key = EXCLUDED.report_key,
			report_etag = EXCLUDED.report_etag,
			created_at = now()
	`, uuid.New().String(), p.DatasetID, p.ReportBucket, p.ReportKey, p.ReportEtag)
	if err != nil {
		return wrapDBErr("upsert report", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET state = $2, progress = 100, finished_at = now(), error = NULL
		WHERE id = $1 AND state = $3
	`, p.JobID, domain.JobStateSuccess, domain.JobStateStarted)
	if err != nil {
		return wrapDBErr("finalize job success", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return wrapDBErr("finalize job success", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: job %s not started", domain.ErrConflict, p.JobID)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE datasets
		SET status = $2, processed_at = now(), row_count = $3, error = NULL
		WHERE id = $1 AND status = $4
	`, p.DatasetID, domain.DatasetStatusDone, p.RowCount, domain.DatasetStatusProcessing)
	if err != nil {
		return wrapDBErr("finalize dataset done", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return wrapDBErr("finalize dataset done", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: dataset %s not processing", domain.ErrConflict, p.DatasetID)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBErr("commit finalize success", err)
	}

	s.logger.Info("Job finalized as success",
		slog.String("job_id", p.JobID),
		slog.String("dataset_id", p.DatasetID),
		slog.Int64("row_count", p.RowCount),
	)
	return nil
}

// FinalizeJobFailure completes the job as failure and mirrors the error onto
// the dataset in one transaction. The job CAS accepts started or retrying so
// both immediate failures and retry exhaustion land here.
func (s *Store) FinalizeJobFailure(ctx context.Context, jobID, datasetID, errMsg string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapDBErr("begin finalize failure", err)
	}
	defer tx.Rollback()

	finalizable := []string{domain.JobStateStarted, domain.JobStateRetrying}

	result, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET state = $2, error = $3, finished_at = now()
		WHERE id = $1 AND state = ANY($4)
	`, jobID, domain.JobStateFailure, errMsg, pq.Array(finalizable))
	if err != nil {
		return wrapDBErr("finalize job failure", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return wrapDBErr("finalize job failure", err)
	} else if affected == 0 {
		return fmt.Errorf("%w: job %s already terminal", domain.ErrConflict, jobID)
	}

	// The dataset transition may miss if processing never started; the job
	// failure must land regardless.
	_, err = tx.ExecContext(ctx, `
		UPDATE datasets
		SET status = $2, error = $3
		WHERE id = $1 AND status = $4
	`, datasetID, domain.DatasetStatusFailed, errMsg, domain.DatasetStatusProcessing)
	if err != nil {
		return wrapDBErr("finalize dataset failed", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapDBErr("commit finalize failure", err)
	}

	s.logger.Warn("Job finalized as failure",
		slog.String("job_id", jobID),
		slog.String("dataset_id", datasetID),
		slog.String("error", errMsg),
	)
	return nil
}
