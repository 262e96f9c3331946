package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

const datasetColumns = `
	id, name, original_filename, content_type, status,
	checksum_sha256, size_bytes, uploaded_at, processed_at,
	row_count, error, upload_bucket, upload_key, upload_etag
`

// CreateDatasetIfNew inserts a dataset keyed by its content checksum.
// When another upload with the same bytes already exists the insert is a
// no-op and the existing row is returned with created=false.
func (s *Store) CreateDatasetIfNew(ctx context.Context, dataset *domain.Dataset) (*domain.Dataset, bool, error) {
	query := `
		INSERT INTO datasets (
			id, name, original_filename, content_type, status,
			checksum_sha256, size_bytes, upload_bucket, upload_key, upload_etag
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (checksum_sha256) DO NOTHING
		RETURNING uploaded_at
	`

	err := s.db.QueryRowContext(ctx, query,
		dataset.ID,
		dataset.Name,
		dataset.OriginalFilename,
		dataset.ContentType,
		dataset.Status,
		dataset.ChecksumSHA256,
		dataset.SizeBytes,
		dataset.UploadBucket,
		dataset.UploadKey,
		dataset.UploadEtag,
	).Scan(&dataset.UploadedAt)

	if err == nil {
		s.logger.Info("Dataset created",
			slog.String("dataset_id", dataset.ID),
			slog.String("checksum_sha256", dataset.ChecksumSHA256),
		)
		return dataset, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, wrapDBErr("create dataset", err)
	}

	// Conflict: somebody else holds these bytes. Hand back their row.
	existing, err := s.GetDatasetByChecksum(ctx, dataset.ChecksumSHA256)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetDataset retrieves a dataset by its identifier
func (s *Store) GetDataset(ctx context.Context, datasetID string) (*domain.Dataset, error) {
	query := fmt.Sprintf(`SELECT %s FROM datasets WHERE id = $1`, datasetColumns)

	var dataset domain.Dataset
	if err := s.db.GetContext(ctx, &dataset, query, datasetID); err != nil {
		return nil, wrapDBErr("get dataset", err)
	}
	return &dataset, nil
}

// GetDatasetByChecksum retrieves a dataset by its content checksum
func (s *Store) GetDatasetByChecksum(ctx context.Context, checksum string) (*domain.Dataset, error) {
	query := fmt.Sprintf(`SELECT %s FROM datasets WHERE checksum_sha256 = $1`, datasetColumns)

	var dataset domain.Dataset
	if err := s.db.GetContext(ctx, &dataset, query, checksum); err != nil {
		return nil, wrapDBErr("get dataset by checksum", err)
	}
	return &dataset, nil
}

const summaryColumns = `
	d.id, d.name, d.original_filename, d.content_type, d.status,
	d.checksum_sha256, d.size_bytes, d.uploaded_at, d.processed_at,
	d.row_count, d.error, d.upload_bucket, d.upload_key, d.upload_etag,
	latest.id AS latest_job_id,
	EXISTS (SELECT 1 FROM reports r WHERE r.dataset_id = d.id) AS report_available
`

const summaryJoin = `
	FROM datasets d
	LEFT JOIN LATERAL (
		SELECT id FROM jobs
		WHERE dataset_id = d.id
		ORDER BY queued_at DESC, id DESC
		LIMIT 1
	) latest ON true
`

type datasetSummaryRow struct {
	domain.Dataset
	LatestJobID     *string `db:"latest_job_id"`
	ReportAvailable bool    `db:"report_available"`
}

func (r *datasetSummaryRow) summary() domain.DatasetSummary {
	return domain.DatasetSummary{
		Dataset:         r.Dataset,
		LatestJobID:     r.LatestJobID,
		ReportAvailable: r.ReportAvailable,
	}
}

// ListDatasetSummaries returns the read projection for every dataset,
// newest first: the row, its most recent job id, and report presence.
func (s *Store) ListDatasetSummaries(ctx context.Context) ([]domain.DatasetSummary, error) {
	query := fmt.Sprintf(`SELECT %s %s ORDER BY d.uploaded_at DESC, d.id DESC`, summaryColumns, summaryJoin)

	var rows []datasetSummaryRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrapDBErr("list dataset summaries", err)
	}

	summaries := make([]domain.DatasetSummary, len(rows))
	for i := range rows {
		summaries[i] = rows[i].summary()
	}
	return summaries, nil
}

// DatasetSummary assembles the read projection for one dataset.
func (s *Store) DatasetSummary(ctx context.Context, datasetID string) (*domain.DatasetSummary, error) {
	query := fmt.Sprintf(`SELECT %s %s WHERE d.id = $1`, summaryColumns, summaryJoin)

	var row datasetSummaryRow
	if err := s.db.GetContext(ctx, &row, query, datasetID); err != nil {
		return nil, wrapDBErr("get dataset summary", err)
	}
	summary := row.summary()
	return &summary, nil
}

// MarkDatasetProcessing moves a dataset into processing ahead of a job run.
// The transition is conditional on a non-terminal-success status, so a Done
// dataset is never dragged back into processing. Returns whether a row moved.
func (s *Store) MarkDatasetProcessing(ctx context.Context, datasetID string) (bool, error) {
	query := `
		UPDATE datasets
		SET status = $2, error = NULL
		WHERE id = $1 AND status IN ($3, $2, $4)
	`

	result, err := s.db.ExecContext(ctx, query,
		datasetID,
		domain.DatasetStatusProcessing,
		domain.DatasetStatusUploaded,
		domain.DatasetStatusFailed,
	)
	if err != nil {
		return false, wrapDBErr("mark dataset processing", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, wrapDBErr("mark dataset processing", err)
	}
	return affected > 0, nil
}
