// Package service holds the API use cases: upload targets, job submission,
// job status and the read-only attribute listing.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/product-import/internal/blobstore"
	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/cuongbtq/product-import/internal/jobstore"
	"github.com/cuongbtq/product-import/internal/metrics"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	messageContentType = "application/json"
	enqueueFailPrefix  = "failed to enqueue job: "
)

var (
	// ErrInvalidJobID is returned when a job id is not a UUID
	ErrInvalidJobID = errors.New("job id must be a valid UUID")

	// ErrInvalidFileName is returned when an upload has no usable file name
	ErrInvalidFileName = errors.New("file name is required")

	// ErrInvalidStatus is returned when a status filter is not a known job status
	ErrInvalidStatus = errors.New("unknown job status")

	// ErrEnqueueFailed is returned when a created job could not be published
	ErrEnqueueFailed = errors.New("job could not be enqueued")
)

// JobRepository persists jobs
type JobRepository interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter jobstore.JobFilter) ([]domain.Job, error)
	FailJob(ctx context.Context, jobID, errorMessage string) error
}

// Publisher enqueues job messages
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// ObjectStore mints presigned URLs for uploads and results
type ObjectStore interface {
	PresignUpload(ctx context.Context, fileName string) (*blobstore.UploadTarget, error)
	PresignResultDownload(ctx context.Context, resultKey string) (string, error)
}

// AttributeSource lists attribute definitions
type AttributeSource interface {
	ListAttributeDefinitions(ctx context.Context) ([]domain.AttributeDefinition, error)
}

// Config holds the service collaborators
type Config struct {
	Logger     *slog.Logger
	Jobs       JobRepository
	Publisher  Publisher
	Objects    ObjectStore
	Attributes AttributeSource
}

// JobService implements the job API use cases
type JobService struct {
	logger     *slog.Logger
	jobs       JobRepository
	publisher  Publisher
	objects    ObjectStore
	attributes AttributeSource
	now        func() time.Time
}

// JobStatusReport is the client view of a job
type JobStatusReport struct {
	JobID        string
	Status       domain.JobStatus
	ErrorMessage string
	ResultURL    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobPage is one page of a job listing
type JobPage struct {
	Jobs       []domain.Job
	NextCursor *jobstore.JobCursor
}

// NewJobService creates a new JobService
func NewJobService(cfg *Config) *JobService {
	return &JobService{
		logger:     cfg.Logger,
		jobs:       cfg.Jobs,
		publisher:  cfg.Publisher,
		objects:    cfg.Objects,
		attributes: cfg.Attributes,
		now:        time.Now,
	}
}

// RequestUploadTarget issues a presigned upload URL and the source key to submit afterwards
func (s *JobService) RequestUploadTarget(ctx context.Context, fileName string) (*blobstore.UploadTarget, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, ErrInvalidFileName
	}

	target, err := s.objects.PresignUpload(ctx, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload target: %w", err)
	}

	s.logger.Info("Upload target issued",
		slog.String("source_key", target.SourceKey),
		slog.Time("expires_at", target.ExpiresAt),
	)
	return target, nil
}

// Submit creates a PENDING job for sourceKey and enqueues it. The blob is
// not checked here; a missing file fails the job in the worker. When the
// message cannot be published the job is marked FAILED and ErrEnqueueFailed
// is returned along with it.
func (s *JobService) Submit(ctx context.Context, sourceKey string) (*domain.Job, error) {
	sourceKey = strings.TrimSpace(sourceKey)
	if err := ValidateSourceKey(sourceKey); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &domain.Job{
		JobID:     uuid.NewString(),
		SourceKey: sourceKey,
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	body, err := json.Marshal(domain.JobMessage{JobID: job.JobID, SourceKey: job.SourceKey})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job message: %w", err)
	}

	if err := s.publisher.PublishWithRetry(ctx, body, messageContentType); err != nil {
		s.logger.Error("Failed to enqueue job",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)

		// Record the failure even if the request context is already gone
		reason := enqueueFailPrefix + err.Error()
		if failErr := s.jobs.FailJob(context.WithoutCancel(ctx), job.JobID, reason); failErr != nil {
			s.logger.Error("Failed to mark unenqueued job as FAILED",
				slog.String("job_id", job.JobID),
				slog.Any("error", failErr),
			)
		} else {
			job.Status = domain.JobStatusFailed
			job.ErrorMessage = reason
		}

		metrics.IncreaseJobsSubmittedMetric("enqueue_failed")
		return job, fmt.Errorf("%w: %v", ErrEnqueueFailed, err)
	}

	metrics.IncreaseJobsSubmittedMetric("accepted")
	s.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.String("source_key", job.SourceKey),
	)
	return job, nil
}

// GetStatus returns the client view of a job, with a presigned result URL
// once the job has a result document
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*JobStatusReport, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, ErrInvalidJobID
	}

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	report := &JobStatusReport{
		JobID:        job.JobID,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}

	if job.Status.HasResult() && job.ResultKey != "" {
		url, err := s.objects.PresignResultDownload(ctx, job.ResultKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create result url: %w", err)
		}
		report.ResultURL = url
	}

	return report, nil
}

// ListJobs returns a page of jobs, newest first
func (s *JobService) ListJobs(ctx context.Context, status string, pageSize int, cursor *jobstore.JobCursor) (*JobPage, error) {
	filter := jobstore.JobFilter{
		PageSize: clampPageSize(pageSize),
		Cursor:   cursor,
	}

	if status != "" {
		st := domain.JobStatus(strings.ToUpper(status))
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
		}
		filter.Status = st
	}

	jobs, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &JobPage{Jobs: jobs}
	if len(jobs) > filter.PageSize {
		page.Jobs = jobs[:filter.PageSize]
		last := page.Jobs[len(page.Jobs)-1]
		page.NextCursor = &jobstore.JobCursor{CreatedAt: last.CreatedAt, JobID: last.JobID}
	}
	return page, nil
}

// ListAttributes returns the current attribute definitions
func (s *JobService) ListAttributes(ctx context.Context) ([]domain.AttributeDefinition, error) {
	defs, err := s.attributes.ListAttributeDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	return defs, nil
}

// ValidateSourceKey rejects empty keys, absolute keys and keys with ".." segments
func ValidateSourceKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: sourceKey is required", domain.ErrInvalidSourceKey)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: sourceKey must be relative", domain.ErrInvalidSourceKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("%w: sourceKey must not contain '..'", domain.ErrInvalidSourceKey)
		}
	}
	return nil
}

func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
