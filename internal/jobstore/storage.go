// Package jobstore persists import jobs in PostgreSQL. Every status change is
// a conditional UPDATE so that concurrent workers cannot both win a transition.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/product-import/internal/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all job database operations
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job record
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO import_jobs (
			job_id, source_key, status, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.SourceKey,
		string(job.Status),
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by its ID
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE job_id = $1`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain(), nil
}

// JobFilter narrows ListJobs
type JobFilter struct {
	Status   domain.JobStatus
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last job on a page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs, newest first.
// The extra row tells the caller whether another page exists.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i := range rows {
		jobs[i] = *rows[i].toDomain()
	}
	return jobs, nil
}

// ClaimJob moves a job to PROCESSING for the given delivery attempt.
// A PENDING job is always claimable. A PROCESSING job is claimable by a
// later attempt than the one holding it, or by any attempt once the holder's
// lease has run out (no update for longer than lease). Anything else returns
// domain.ErrJobAlreadyClaimed.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string, attempt int, lease time.Duration) (*domain.Job, error) {
	query := `
		UPDATE import_jobs
		SET status = $1,
		    attempts = $2,
		    worker_id = $3,
		    started_at = COALESCE(started_at, NOW()),
		    updated_at = NOW()
		WHERE job_id = $4
		  AND (status = $5
		       OR (status = $1 AND (attempts < $2 OR updated_at < NOW() - make_interval(secs => $6))))
		RETURNING ` + jobColumns

	var row jobRow
	err := s.db.GetContext(ctx, &row, query,
		string(domain.JobStatusProcessing), attempt, workerID, jobID, string(domain.JobStatusPending), lease.Seconds())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed, finished or missing",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
				slog.Int("attempt", attempt),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.Int("attempt", attempt),
	)

	return row.toDomain(), nil
}

// CompleteJob moves a PROCESSING job to COMPLETED or COMPLETED_WITH_ISSUES
func (s *Storage) CompleteJob(ctx context.Context, jobID string, status domain.JobStatus, resultKey string) error {
	if !domain.JobStatusProcessing.CanTransitionTo(status) || !status.HasResult() || resultKey == "" {
		return fmt.Errorf("%w: %s requires a result key", domain.ErrInvalidTransition, status)
	}

	query := `
		UPDATE import_jobs
		SET status = $1,
		    result_key = $2,
		    error_message = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`

	return s.transition(ctx, jobID, status, query,
		string(status), resultKey, jobID, string(domain.JobStatusProcessing))
}

// FailJob moves a PENDING or PROCESSING job to FAILED
func (s *Storage) FailJob(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE import_jobs
		SET status = $1,
		    result_key = NULL,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND status IN ($4, $5)
	`

	return s.transition(ctx, jobID, domain.JobStatusFailed, query,
		string(domain.JobStatusFailed), errorMessage, jobID,
		string(domain.JobStatusPending), string(domain.JobStatusProcessing))
}

func (s *Storage) transition(ctx context.Context, jobID string, status domain.JobStatus, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status update skipped - job not in expected state",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
		)
		return fmt.Errorf("%w: job %s cannot move to %s", domain.ErrInvalidTransition, jobID, status)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)

	return nil
}
