package domain

import "time"

// JobStatus is the lifecycle state of an import job
type JobStatus string

// Job status constants
const (
	JobStatusPending             JobStatus = "PENDING"
	JobStatusProcessing          JobStatus = "PROCESSING"
	JobStatusCompleted           JobStatus = "COMPLETED"
	JobStatusCompletedWithIssues JobStatus = "COMPLETED_WITH_ISSUES"
	JobStatusFailed              JobStatus = "FAILED"
)

// IsValid reports whether s is one of the known statuses
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted,
		JobStatusCompletedWithIssues, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave s
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCompletedWithIssues || s == JobStatusFailed
}

// HasResult reports whether a job in status s carries a result blob
func (s JobStatus) HasResult() bool {
	return s == JobStatusCompleted || s == JobStatusCompletedWithIssues
}

// CanTransitionTo reports whether moving from s to next is allowed.
// PENDING -> FAILED only happens when the submission could not be enqueued.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

// Job is one asynchronous run of file ingestion and validation
type Job struct {
	JobID        string
	SourceKey    string
	Status       JobStatus
	ResultKey    string
	ErrorMessage string
	Attempts     int
	WorkerID     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobMessage is the queue payload carrying a processing request.
// Unknown fields are ignored on decode.
type JobMessage struct {
	JobID     string `json:"jobId"`
	SourceKey string `json:"sourceKey"`
}
