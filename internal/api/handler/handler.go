package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/product-import/internal/api/service"
	"github.com/cuongbtq/product-import/internal/blobstore"
	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/jobstore"
)

// JobService is the use-case layer behind the job endpoints
type JobService interface {
	RequestUploadTarget(ctx context.Context, fileName string) (*blobstore.UploadTarget, error)
	Submit(ctx context.Context, sourceKey string) (*domain.Job, error)
	GetStatus(ctx context.Context, jobID string) (*service.JobStatusReport, error)
	ListJobs(ctx context.Context, status string, pageSize int, cursor *jobstore.JobCursor) (*service.JobPage, error)
	ListAttributes(ctx context.Context) ([]domain.AttributeDefinition, error)
}

// HealthChecker reports whether a dependency is usable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Service      JobService
	HealthChecks map[string]HealthChecker
	ServiceName  string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
