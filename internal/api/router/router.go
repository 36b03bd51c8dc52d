package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/bg-uploader/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "uploader-service",
		})
	})

	uploadHandler := handler.NewUploadHandler(deps)

	v1 := r.Group("/api/v1")
	{
		uploads := v1.Group("/uploads")
		{
			// POST /api/v1/uploads - Schedule a new upload
			uploads.POST("", uploadHandler.CreateUpload)

			// GET /api/v1/uploads - List unfinished uploads
			uploads.GET("", uploadHandler.ListUploads)

			// POST /api/v1/uploads/cancel - Cancel every upload
			uploads.POST("/cancel", uploadHandler.CancelAllUploads)

			// POST /api/v1/uploads/:id/cancel - Cancel one upload
			uploads.POST("/:id/cancel", uploadHandler.CancelUpload)
		}
	}

	return r
}
