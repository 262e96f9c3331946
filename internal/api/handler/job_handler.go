package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger *slog.Logger
	store  Store
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		store:  deps.Store,
	}
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	jobs, err := h.store.ListJobs(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]JobResponse, len(jobs))
	for i := range jobs {
		response[i] = jobResponse(&jobs[i])
	}
	c.JSON(http.StatusOK, gin.H{"jobs": response})
}

// Get handles GET /api/v1/jobs/:job_id
// Clients poll this for state and progress while a dataset is processing.
func (h *JobHandler) Get(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: job_id must be a valid UUID", domain.ErrInvalidRequest))
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, jobResponse(job))
}
