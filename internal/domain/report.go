package domain

import "time"

// Report points at the generated report object for a dataset.
// At most one report exists per dataset; the worker upserts it.
type Report struct {
	ID           string    `db:"id"`
	DatasetID    string    `db:"dataset_id"`
	CreatedAt    time.Time `db:"created_at"`
	ReportBucket string    `db:"report_bucket"`
	ReportKey    string    `db:"report_key"`
	ReportEtag   *string   `db:"report_etag"`
}
