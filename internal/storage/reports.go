package storage

import (
	"context"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// GetReport retrieves the report row for a dataset
func (s *Store) GetReport(ctx context.Context, datasetID string) (*domain.Report, error) {
	query := `
		SELECT id, dataset_id, created_at, report_bucket, report_key, report_etag
		FROM reports
		WHERE dataset_id = $1
	`

	var report domain.Report
	if err := s.db.GetContext(ctx, &report, query, datasetID); err != nil {
		return nil, wrapDBErr("get report", err)
	}
	return &report, nil
}
