package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/dataset-processor/internal/domain"
	"github.com/cuongbtq/dataset-processor/internal/metrics"
	"github.com/cuongbtq/dataset-processor/internal/parser"
)

// DatasetHandler handles dataset-related HTTP requests
type DatasetHandler struct {
	logger         *slog.Logger
	store          Store
	blobs          BlobStore
	enqueuer       Enqueuer
	metrics        *metrics.Metrics
	uploadsBucket  string
	maxUploadBytes int64
}

// NewDatasetHandler creates a new DatasetHandler instance
func NewDatasetHandler(deps *Dependencies) *DatasetHandler {
	return &DatasetHandler{
		logger:         deps.Logger,
		store:          deps.Store,
		blobs:          deps.Blobs,
		enqueuer:       deps.Enqueuer,
		metrics:        deps.Metrics,
		uploadsBucket:  deps.UploadsBucket,
		maxUploadBytes: deps.MaxUploadBytes,
	}
}

// Upload handles POST /api/v1/datasets
// Accepts a multipart form with a "name" field and a "file" part. Uploads
// are deduplicated by content checksum: the same bytes always map to the
// same dataset, whatever name or filename they arrive under, and the
// idempotent hit answers 201 like the first upload did.
func (h *DatasetHandler) Upload(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		respondError(c, h.logger, fmt.Errorf("%w: name is required", domain.ErrInvalidRequest))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: file is required", domain.ErrInvalidRequest))
		return
	}

	if h.maxUploadBytes > 0 && fileHeader.Size > h.maxUploadBytes {
		respondError(c, h.logger, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidRequest, h.maxUploadBytes))
		return
	}

	contentType, err := resolveContentType(fileHeader)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	body, err := readUpload(fileHeader)
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	sum := sha256.Sum256(body)
	checksum := hex.EncodeToString(sum[:])

	// Dedup before touching the object store: the same bytes already have
	// a home.
	existing, err := h.store.GetDatasetByChecksum(c.Request.Context(), checksum)
	if err == nil {
		h.metrics.DatasetsDeduplicate.Inc()
		h.logger.Info("Upload deduplicated by checksum",
			slog.String("dataset_id", existing.ID),
			slog.String("checksum_sha256", checksum),
		)
		c.JSON(http.StatusCreated, datasetResponse(existing))
		return
	}
	if !errors.Is(err, domain.ErrNotFound) {
		respondError(c, h.logger, err)
		return
	}

	datasetID := uuid.New().String()
	key := domain.UploadKey(datasetID, fileHeader.Filename)

	etag, err := h.blobs.Put(c.Request.Context(), h.uploadsBucket, key, body, contentType)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	dataset := &domain.Dataset{
		ID:               datasetID,
		Name:             name,
		OriginalFilename: domain.Basename(fileHeader.Filename),
		ContentType:      contentType,
		Status:           domain.DatasetStatusUploaded,
		ChecksumSHA256:   checksum,
		SizeBytes:        int64(len(body)),
		UploadBucket:     h.uploadsBucket,
		UploadKey:        key,
	}
	if etag != "" {
		dataset.UploadEtag = &etag
	}

	dataset, created, err := h.store.CreateDatasetIfNew(c.Request.Context(), dataset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !created {
		// Lost the insert race to a concurrent identical upload. The blob
		// written above is orphaned under the losing id, which is harmless.
		h.metrics.DatasetsDeduplicate.Inc()
		c.JSON(http.StatusCreated, datasetResponse(dataset))
		return
	}

	h.metrics.DatasetsUploaded.Inc()
	h.logger.Info("Dataset uploaded",
		slog.String("dataset_id", dataset.ID),
		slog.String("content_type", contentType),
		slog.Int64("size_bytes", dataset.SizeBytes),
	)
	c.JSON(http.StatusCreated, datasetResponse(dataset))
}

// List handles GET /api/v1/datasets
func (h *DatasetHandler) List(c *gin.Context) {
	summaries, err := h.store.ListDatasetSummaries(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]DatasetDetailResponse, len(summaries))
	for i := range summaries {
		response[i] = datasetDetailResponse(&summaries[i])
	}
	c.JSON(http.StatusOK, gin.H{"datasets": response})
}

// Get handles GET /api/v1/datasets/:dataset_id
func (h *DatasetHandler) Get(c *gin.Context) {
	datasetID, ok := h.datasetIDParam(c)
	if !ok {
		return
	}

	summary, err := h.store.DatasetSummary(c.Request.Context(), datasetID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, datasetDetailResponse(summary))
}

// Process handles POST /api/v1/datasets/:dataset_id/process
// Requests profiling for a dataset. The response is always a job handle to
// poll, whether the call started a new job or joined an existing outcome.
func (h *DatasetHandler) Process(c *gin.Context) {
	datasetID, ok := h.datasetIDParam(c)
	if !ok {
		return
	}

	job, err := h.enqueuer.Enqueue(c.Request.Context(), datasetID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.metrics.JobsEnqueued.Inc()
	c.JSON(http.StatusAccepted, jobResponse(job))
}

// GetReport handles GET /api/v1/datasets/:dataset_id/report
// Streams the stored report document back to the client.
func (h *DatasetHandler) GetReport(c *gin.Context) {
	datasetID, ok := h.datasetIDParam(c)
	if !ok {
		return
	}

	report, err := h.store.GetReport(c.Request.Context(), datasetID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	body, err := h.blobs.Get(c.Request.Context(), report.ReportBucket, report.ReportKey)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

func (h *DatasetHandler) datasetIDParam(c *gin.Context) (string, bool) {
	datasetID := c.Param("dataset_id")
	if _, err := uuid.Parse(datasetID); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: dataset_id must be a valid UUID", domain.ErrInvalidRequest))
		return "", false
	}
	return datasetID, true
}

// resolveContentType normalizes the declared part content type and falls
// back to the filename extension for generic declarations.
func resolveContentType(fileHeader *multipart.FileHeader) (string, error) {
	declared := fileHeader.Header.Get("Content-Type")
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			declared = mediaType
		}
	}

	switch declared {
	case parser.ContentTypeCSV, parser.ContentTypeJSON:
		return declared, nil
	case "", "application/octet-stream":
		switch strings.ToLower(path.Ext(fileHeader.Filename)) {
		case ".csv":
			return parser.ContentTypeCSV, nil
		case ".json":
			return parser.ContentTypeJSON, nil
		}
	}

	return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedContentType, declared)
}

func readUpload(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
