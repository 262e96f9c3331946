package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/dataset-processor/internal/domain"
)

// respondError maps domain errors onto HTTP status codes. Infra trouble is
// 503 so clients can tell "try again later" apart from their own mistakes.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrUnsupportedContentType):
		status = http.StatusUnsupportedMediaType
		message = err.Error()
	case errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrObjectStoreUnavailable),
		errors.Is(err, domain.ErrQueueUnavailable):
		status = http.StatusServiceUnavailable
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(status, gin.H{"error": message})
}
