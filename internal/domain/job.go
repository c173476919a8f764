package domain

import "time"

// JobStatus is the lifecycle state of an analysis job.
type JobStatus string

// Job status constants. A job moves pending -> running -> completed|failed
// and never leaves a terminal state.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusRunning
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed
	}
	return false
}

// Job is one analysis request and its outcome.
type Job struct {
	ID          string     `json:"id"           db:"id"`
	Status      JobStatus  `json:"status"       db:"status"`
	RepoPath    string     `json:"repo_path"    db:"repo_path"`
	RepoID      *string    `json:"repo_id"      db:"repo_id"`
	Recursive   bool       `json:"recursive"    db:"recursive"`
	CreatedAt   time.Time  `json:"created_at"   db:"created_at"`
	StartedAt   *time.Time `json:"started_at"   db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	Error       *string    `json:"error"        db:"error"`
	ReportPath  *string    `json:"report_path"  db:"report_path"`
}

// JobRequest is the payload accepted by the analyze endpoint.
type JobRequest struct {
	RepoPath  string  `json:"repo_path"`
	RepoID    *string `json:"repo_id,omitempty"`
	Recursive *bool   `json:"recursive,omitempty"`
}
