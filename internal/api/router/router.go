package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/dataset-processor/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.DB != nil {
			if err := deps.DB.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "dataset-api-service",
		})
	})

	// Prometheus metrics endpoint
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	datasetHandler := handler.NewDatasetHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		datasets := v1.Group("/datasets")
		{
			// POST /api/v1/datasets - Upload a dataset
			datasets.POST("", datasetHandler.Upload)

			// GET /api/v1/datasets - List datasets
			datasets.GET("", datasetHandler.List)

			// GET /api/v1/datasets/:dataset_id - Get dataset details
			datasets.GET("/:dataset_id", datasetHandler.Get)

			// POST /api/v1/datasets/:dataset_id/process - Request profiling
			datasets.POST("/:dataset_id/process", datasetHandler.Process)

			// GET /api/v1/datasets/:dataset_id/report - Fetch the report document
			datasets.GET("/:dataset_id/report", datasetHandler.GetReport)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs
			jobs.GET("", jobHandler.List)

			// GET /api/v1/jobs/:job_id - Get job state and progress
			jobs.GET("/:job_id", jobHandler.Get)
		}
	}

	return r
}
