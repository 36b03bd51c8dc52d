package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/bg-uploader/internal/upload/domain"
	"github.com/cuongbtq/bg-uploader/internal/upload/service"
)

// UploadService is the command surface the handlers drive
type UploadService interface {
	StartJob(ctx context.Context, job domain.Job, notification domain.NotificationConfig) (string, error)
	CancelJob(ctx context.Context, id string) error
	CancelAllJobs(ctx context.Context) error
	ListJobs(ctx context.Context) ([]service.JobState, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Service UploadService
}

// UploadHandler handles upload-related HTTP requests
type UploadHandler struct {
	logger  *slog.Logger
	service UploadService
}

// NewUploadHandler creates a new UploadHandler instance
func NewUploadHandler(deps *Dependencies) *UploadHandler {
	return &UploadHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
