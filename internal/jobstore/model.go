package jobstore

import (
	"database/sql"
	"time"

	"github.com/cuongbtq/product-import/internal/domain"
)

// jobRow mirrors the import_jobs table
type jobRow struct {
	JobID        string         `db:"job_id"`
	SourceKey    string         `db:"source_key"`
	Status       string         `db:"status"`
	ResultKey    sql.NullString `db:"result_key"`
	ErrorMessage sql.NullString `db:"error_message"`
	Attempts     int            `db:"attempts"`
	WorkerID     sql.NullString `db:"worker_id"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		JobID:        r.JobID,
		SourceKey:    r.SourceKey,
		Status:       domain.JobStatus(r.Status),
		ResultKey:    r.ResultKey.String,
		ErrorMessage: r.ErrorMessage.String,
		Attempts:     r.Attempts,
		WorkerID:     r.WorkerID.String,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

const jobColumns = `job_id, source_key, status, result_key, error_message,
	attempts, worker_id, created_at, updated_at`
