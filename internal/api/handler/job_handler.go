package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/product-import/internal/api/dto"
	"github.com/cuongbtq/product-import/internal/api/service"
	"github.com/cuongbtq/product-import/internal/domain"
)

// RequestUploadTarget handles POST /api/v1/uploads
// Issues a presigned URL the client uploads its file to before submitting a job
func (h *JobHandler) RequestUploadTarget(c *gin.Context) {
	var req dto.UploadTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "fileName is required"})
		return
	}

	target, err := h.service.RequestUploadTarget(c.Request.Context(), req.FileName)
	if err != nil {
		if errors.Is(err, service.ErrInvalidFileName) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Failed to create upload target", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to create upload target"})
		return
	}

	c.JSON(http.StatusOK, dto.UploadTargetResponse{
		UploadURL: target.UploadURL,
		SourceKey: target.SourceKey,
		ExpiresAt: target.ExpiresAt.Format(time.RFC3339),
	})
}

// SubmitJob handles POST /api/v1/jobs
// Creates an import job for an uploaded file and queues it for processing
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "sourceKey is required"})
		return
	}

	job, err := h.service.Submit(c.Request.Context(), req.SourceKey)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSourceKey):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrEnqueueFailed):
			h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":  "Job could not be queued, please retry",
				"jobId":  job.JobID,
				"status": job.Status,
			})
		default:
			h.logger.Error("Failed to submit job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to submit job"})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitJobResponse{
		JobID:  job.JobID,
		Status: string(job.Status),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the job status, with a download URL once a result exists
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	report, err := h.service.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidJobID):
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "job_id must be a valid UUID"})
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Job not found"})
		default:
			h.logger.Error("Failed to get job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get job"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{
		JobID:        report.JobID,
		Status:       string(report.Status),
		ErrorMessage: report.ErrorMessage,
		ResultURL:    report.ResultURL,
		CreatedAt:    report.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    report.UpdatedAt.Format(time.RFC3339),
	})
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with an optional status filter and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid query parameters"})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid cursor"})
		return
	}

	page, err := h.service.ListJobs(c.Request.Context(), req.Status, req.PageSize, cursor)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list jobs"})
		return
	}

	jobResponse := make([]dto.JobDTO, len(page.Jobs))
	for i, job := range page.Jobs {
		jobResponse[i] = dto.JobDTO{
			JobID:        job.JobID,
			SourceKey:    job.SourceKey,
			Status:       string(job.Status),
			ErrorMessage: job.ErrorMessage,
			Attempts:     job.Attempts,
			CreatedAt:    job.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if page.NextCursor != nil {
		nextCursor = EncodeJobCursor(page.NextCursor)
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// ListAttributes handles GET /api/v1/attributes
func (h *JobHandler) ListAttributes(c *gin.Context) {
	defs, err := h.service.ListAttributes(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list attributes", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to list attributes"})
		return
	}

	attrs := make([]dto.AttributeDTO, len(defs))
	for i, d := range defs {
		attrs[i] = dto.AttributeDTO{
			ID:        d.ID,
			Name:      d.Name,
			DataType:  string(d.DataType),
			Required:  d.Required,
			Options:   d.Options,
			Unit:      d.Unit,
			MaxLength: d.MaxLength,
		}
	}

	c.JSON(http.StatusOK, dto.ListAttributesResponse{Attributes: attrs})
}
