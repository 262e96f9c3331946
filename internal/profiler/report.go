package profiler

import (
	"encoding/json"
	"time"
)

// Report is the JSON document persisted to the reports bucket.
type Report struct {
	DatasetID   string                  `json:"dataset_id"`
	GeneratedAt string                  `json:"generated_at"`
	RowCount    int64                   `json:"row_count"`
	NullCounts  map[string]int64        `json:"null_counts"`
	Numeric     map[string]NumericStats `json:"numeric"`
	Anomalies   Anomalies               `json:"anomalies"`
}

// BuildReport assembles the report document from both profiling passes.
func BuildReport(datasetID string, generatedAt time.Time, stats Stats, anomalies Anomalies) Report {
	return Report{
		DatasetID:   datasetID,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		RowCount:    stats.RowCount,
		NullCounts:  stats.NullCounts,
		Numeric:     stats.Numeric,
		Anomalies:   anomalies,
	}
}

// Marshal serializes the report compactly for object storage.
func (r Report) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
