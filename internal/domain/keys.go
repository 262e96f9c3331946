package domain

import (
	"fmt"
	"path"
	"strings"
)

// UploadKey derives the object key for an uploaded dataset blob.
// The filename is reduced to its basename so client-supplied paths
// cannot escape the dataset prefix.
func UploadKey(datasetID, originalFilename string) string {
	return fmt.Sprintf("datasets/%s/source/%s", datasetID, Basename(originalFilename))
}

// ReportKey derives the object key for a dataset's generated report.
func ReportKey(datasetID string) string {
	return fmt.Sprintf("datasets/%s/report/report.json", datasetID)
}

// Basename strips directory components from a client-supplied filename,
// tolerating both slash styles.
func Basename(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	return path.Base(name)
}
