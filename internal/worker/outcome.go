package worker

import (
	"time"

	"github.com/cuongbtq/product-import/internal/domain"
)

// decideStatus maps a validation result with at least one matched column
// and one data row to a terminal status.
func decideStatus(r *domain.ValidationResult) domain.JobStatus {
	if len(r.ValidRecords) > 0 && len(r.RowErrors) == 0 && len(r.IgnoredColumns) == 0 {
		return domain.JobStatusCompleted
	}
	return domain.JobStatusCompletedWithIssues
}

type resultSummary struct {
	TotalRows      int `json:"totalRows"`
	ValidRows      int `json:"validRows"`
	InvalidRows    int `json:"invalidRows"`
	RowErrors      int `json:"rowErrors"`
	IgnoredColumns int `json:"ignoredColumns"`
}

// resultDocument is the JSON body stored under a job's result key
type resultDocument struct {
	JobID          string            `json:"jobId"`
	SourceKey      string            `json:"sourceKey"`
	Status         domain.JobStatus  `json:"status"`
	ProcessedAt    time.Time         `json:"processedAt"`
	TotalRows      int               `json:"totalRows"`
	MatchedColumns []string          `json:"matchedColumns"`
	Summary        resultSummary     `json:"summary"`
	ValidRecords   []map[string]any  `json:"validRecords"`
	IgnoredColumns []string          `json:"ignoredColumns"`
	RowErrors      []domain.RowError `json:"rowErrors"`

	// SkippedAttributes lists stored definitions left out of validation because they are invalid
	SkippedAttributes []domain.SkippedAttribute `json:"skippedAttributes,omitempty"`
}

func newResultDocument(job *domain.Job, status domain.JobStatus, r *domain.ValidationResult, processedAt time.Time) *resultDocument {
	return &resultDocument{
		JobID:          job.JobID,
		SourceKey:      job.SourceKey,
		Status:         status,
		ProcessedAt:    processedAt.UTC(),
		TotalRows:      r.TotalRows,
		MatchedColumns: r.MatchedColumns,
		Summary: resultSummary{
			TotalRows:      r.TotalRows,
			ValidRows:      len(r.ValidRecords),
			InvalidRows:    r.TotalRows - len(r.ValidRecords),
			RowErrors:      len(r.RowErrors),
			IgnoredColumns: len(r.IgnoredColumns),
		},
		ValidRecords:   r.ValidRecords,
		IgnoredColumns: r.IgnoredColumns,
		RowErrors:      r.RowErrors,
	}
}
