package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Field names for the job model
const (
	// JobIDField is the field name for the external job identifier
	JobIDField = "job_id"
	// JobStatusField is the field name for job status
	JobStatusField = "status"
	// JobCreatedAtField is the field name for the job creation timestamp
	JobCreatedAtField = "created_at"
)

// JobStatus represents the current state of a job
type JobStatus string

// Job status constants
const (
	// JobStatusUnknown represents an unknown or invalid job status
	JobStatusUnknown JobStatus = "unknown"
	// JobStatusPending indicates the job has been created but no stage has run yet
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates at least one pipeline stage has started
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the final stage finished successfully
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a stage exhausted its retries or hit a terminal error
	JobStatusFailed JobStatus = "failed"
)

// Job is the authoritative record of a pipeline job's lifecycle. The status
// is monotonic: pending -> running -> completed | failed, with at most one
// terminal transition ever committed.
type Job struct {
	gorm.Model
	JobID       string          `json:"job_id" gorm:"not null;uniqueIndex"`
	Status      JobStatus       `json:"status" gorm:"not null;index"`
	Result      json.RawMessage `json:"result,omitempty" gorm:"type:jsonb"`
	Error       string          `json:"error,omitempty" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is one of the two terminal states
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus converts a string to a JobStatus type
func ParseJobStatus(str string) (JobStatus, error) {
	switch str {
	case string(JobStatusUnknown), "":
		return JobStatusUnknown, nil
	case string(JobStatusPending):
		return JobStatusPending, nil
	case string(JobStatusRunning):
		return JobStatusRunning, nil
	case string(JobStatusCompleted):
		return JobStatusCompleted, nil
	case string(JobStatusFailed):
		return JobStatusFailed, nil
	default:
		return JobStatusUnknown, fmt.Errorf("invalid job status: %s", str)
	}
}

// UnmarshalJSON implements json.Unmarshaler for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// MarshalJSON implements json.Marshaler for JobStatus
func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Validate ensures that the job data is valid
func (j *Job) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job id cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return j.Validate()
}
