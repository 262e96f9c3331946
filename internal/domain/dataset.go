package domain

import "time"

// Dataset status constants
const (
	DatasetStatusUploaded   = "uploaded"
	DatasetStatusProcessing = "processing"
	DatasetStatusDone       = "done"
	DatasetStatusFailed     = "failed"
)

// Dataset represents an uploaded dataset and its processing outcome
type Dataset struct {
	ID               string     `db:"id"`
	Name             string     `db:"name"`
	OriginalFilename string     `db:"original_filename"`
	ContentType      string     `db:"content_type"`
	Status           string     `db:"status"`
	ChecksumSHA256   string     `db:"checksum_sha256"`
	SizeBytes        int64      `db:"size_bytes"`
	UploadedAt       time.Time  `db:"uploaded_at"`
	ProcessedAt      *time.Time `db:"processed_at"`
	RowCount         *int64     `db:"row_count"`
	Error            *string    `db:"error"`
	UploadBucket     string     `db:"upload_bucket"`
	UploadKey        string     `db:"upload_key"`
	UploadEtag       *string    `db:"upload_etag"`
}

// DatasetSummary is the read projection for a dataset: the row itself plus
// the latest job handle and whether a report has been generated.
type DatasetSummary struct {
	Dataset         Dataset
	LatestJobID     *string
	ReportAvailable bool
}
