package handler

import (
	"time"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// DatasetResponse is the wire shape of a dataset
type DatasetResponse struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	OriginalFilename string  `json:"original_filename"`
	ContentType      string  `json:"content_type"`
	Status           string  `json:"status"`
	ChecksumSHA256   string  `json:"checksum_sha256"`
	SizeBytes        int64   `json:"size_bytes"`
	UploadedAt       string  `json:"uploaded_at"`
	ProcessedAt      *string `json:"processed_at,omitempty"`
	RowCount         *int64  `json:"row_count,omitempty"`
	Error            *string `json:"error,omitempty"`
}

// DatasetDetailResponse extends DatasetResponse with the latest job handle
// and report availability
type DatasetDetailResponse struct {
	DatasetResponse
	LatestJobID     *string `json:"latest_job_id,omitempty"`
	ReportAvailable bool    `json:"report_available"`
}

// JobResponse is the wire shape of a job
type JobResponse struct {
	ID         string  `json:"id"`
	DatasetID  string  `json:"dataset_id"`
	TaskID     *string `json:"task_id,omitempty"`
	State      string  `json:"state"`
	Progress   int     `json:"progress"`
	QueuedAt   string  `json:"queued_at"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
	Error      *string `json:"error,omitempty"`
}

func datasetResponse(d *domain.Dataset) DatasetResponse {
	return DatasetResponse{
		ID:               d.ID,
		Name:             d.Name,
		OriginalFilename: d.OriginalFilename,
		ContentType:      d.ContentType,
		Status:           d.Status,
		ChecksumSHA256:   d.ChecksumSHA256,
		SizeBytes:        d.SizeBytes,
		UploadedAt:       d.UploadedAt.UTC().Format(time.RFC3339),
		ProcessedAt:      formatTimePtr(d.ProcessedAt),
		RowCount:         d.RowCount,
		Error:            d.Error,
	}
}

func datasetDetailResponse(s *domain.DatasetSummary) DatasetDetailResponse {
	return DatasetDetailResponse{
		DatasetResponse: datasetResponse(&s.Dataset),
		LatestJobID:     s.LatestJobID,
		ReportAvailable: s.ReportAvailable,
	}
}

func jobResponse(j *domain.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		DatasetID:  j.DatasetID,
		TaskID:     j.TaskID,
		State:      j.State,
		Progress:   j.Progress,
		QueuedAt:   j.QueuedAt.UTC().Format(time.RFC3339),
		StartedAt:  formatTimePtr(j.StartedAt),
		FinishedAt: formatTimePtr(j.FinishedAt),
		Error:      j.Error,
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
