// Package store persists export jobs and service settings in SQLite.
package store

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"

	// ConfigKeyAuthToken holds the bearer token for the HTTP API.
	ConfigKeyAuthToken = "auth_token"
)

// Job is one export tracked by the service.
type Job struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Status     string    `json:"status"`
	Stage      string    `json:"stage"`
	Progress   int       `json:"progress"`
	SourcePath string    `json:"source_path"`
	OutputPath string    `json:"output_path,omitempty"`
	EDLPath    string    `json:"edl_path,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	SizeBytes  int64     `json:"size_bytes,omitempty"`
	Request    string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobOutcome is the terminal state written by FinishJob.
type JobOutcome struct {
	Status     string
	Stage      string
	OutputPath string
	EDLPath    string
	ErrorKind  string
	Error      string
	DurationMs int64
	SizeBytes  int64
}

func NewID() string {
	return uuid.NewString()
}
