package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/bg-uploader/internal/api/dto"
	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/request"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// CreateUpload handles POST /api/v1/uploads
// Validates the options and schedules the upload
func (h *UploadHandler) CreateUpload(c *gin.Context) {
	var req dto.CreateUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, notification, err := request.Build(req.ToOptions())
	if err != nil {
		h.respondError(c, "Invalid upload options", err)
		return
	}

	id, err := h.service.StartJob(c.Request.Context(), job, notification)
	if err != nil {
		h.respondError(c, "Failed to start upload", err)
		return
	}

	h.logger.Info("Upload created",
		slog.String("job_id", id),
		slog.String("kind", string(job.Kind)),
		slog.Int("files", len(job.Files)),
	)

	c.JSON(http.StatusCreated, dto.CreateUploadResponse{ID: id})
}

// ListUploads handles GET /api/v1/uploads
// Lists pending, running and cancelled uploads ordered by id
func (h *UploadHandler) ListUploads(c *gin.Context) {
	var req dto.ListUploadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	after, err := DecodeUploadCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list uploads", err)
		return
	}

	start := 0
	if after != "" {
		start = sort.Search(len(jobs), func(i int) bool { return jobs[i].ID > after })
	}
	jobs = jobs[start:]

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	uploads := make([]dto.UploadDTO, len(jobs))
	for i, job := range jobs {
		uploads[i] = dto.UploadDTO{ID: job.ID, State: job.State}
	}

	var nextCursor string
	if hasMore {
		nextCursor = EncodeUploadCursor(jobs[len(jobs)-1].ID)
	}

	c.JSON(http.StatusOK, dto.ListUploadsResponse{
		Uploads:    uploads,
		NextCursor: nextCursor,
	})
}

// CancelUpload handles POST /api/v1/uploads/:id/cancel
func (h *UploadHandler) CancelUpload(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.CancelJob(c.Request.Context(), id); err != nil {
		h.respondError(c, "Failed to cancel upload", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": "cancel requested",
	})
}

// CancelAllUploads handles POST /api/v1/uploads/cancel
func (h *UploadHandler) CancelAllUploads(c *gin.Context) {
	if err := h.service.CancelAllJobs(c.Request.Context()); err != nil {
		h.respondError(c, "Failed to cancel uploads", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "cancel requested",
	})
}

// respondError maps service errors onto HTTP statuses
func (h *UploadHandler) respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidJob):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateJobID):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrJobNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("error", err.Error()))
	} else {
		h.logger.Warn(msg, slog.String("error", err.Error()))
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
	})
}
