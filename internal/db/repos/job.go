// Package repos provides the database repositories.
package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/userpipe/userpipe/internal/db/models"
)

// terminalStatuses are the statuses a job can never leave
var terminalStatuses = []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed}

// JobRepository handles database operations for job status records.
// All mutations are conditional updates keyed by job_id so that duplicate
// delivery of a status-update message is a safe no-op.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new instance of JobRepository
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job record in the pending state
func (r *JobRepository) Create(ctx context.Context, jobID string) (*models.Job, error) {
	job := &models.Job{
		JobID:  jobID,
		Status: models.JobStatusPending,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetByJobID retrieves a job by its external identifier
func (r *JobRepository) GetByJobID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).Where(&models.Job{JobID: jobID}).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns jobs ordered by creation time, optionally filtered by status
func (r *JobRepository) List(ctx context.Context, status models.JobStatus, opts *models.ListOptions) ([]models.Job, error) {
	opts = opts.WithDefaults()
	query := r.db.WithContext(ctx).Model(&models.Job{})
	if status != models.JobStatusUnknown {
		query = query.Where(&models.Job{Status: status})
	}

	var jobs []models.Job
	err := query.
		Limit(opts.Limit).Offset(opts.Offset).
		Order(models.JobCreatedAtField + " DESC").
		Find(&jobs).Error
	return jobs, err
}

// Count returns the number of jobs, optionally filtered by status
func (r *JobRepository) Count(ctx context.Context, status models.JobStatus) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Job{})
	if status != models.JobStatusUnknown {
		query = query.Where(&models.Job{Status: status})
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// MarkRunning transitions a job from pending to running. It is idempotent:
// a job already running is left untouched and a terminal job is never
// regressed.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status = ?", jobID, models.JobStatusPending).
		Update(models.JobStatusField, models.JobStatusRunning)
	if res.Error != nil {
		return fmt.Errorf("failed to mark job running: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.ensureExists(ctx, jobID)
	}
	return nil
}

// Complete commits the terminal completed transition with the final result.
// Only the first terminal transition wins; a job that is already terminal is
// left untouched.
func (r *JobRepository) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	return r.terminal(ctx, jobID, map[string]interface{}{
		"status":       models.JobStatusCompleted,
		"result":       result,
		"completed_at": time.Now().UTC(),
	})
}

// Fail commits the terminal failed transition with a human-readable error.
// Only the first terminal transition wins.
func (r *JobRepository) Fail(ctx context.Context, jobID string, errMsg string) error {
	return r.terminal(ctx, jobID, map[string]interface{}{
		"status":       models.JobStatusFailed,
		"error":        errMsg,
		"completed_at": time.Now().UTC(),
	})
}

// UpdateStatus applies a status transition through the appropriate guarded
// update. It exists to give callers a single entry point matching the status
// store contract.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, result json.RawMessage, errMsg string) error {
	switch status {
	case models.JobStatusRunning:
		return r.MarkRunning(ctx, jobID)
	case models.JobStatusCompleted:
		return r.Complete(ctx, jobID, result)
	case models.JobStatusFailed:
		return r.Fail(ctx, jobID, errMsg)
	default:
		return fmt.Errorf("invalid status transition target: %s", status)
	}
}

// terminal applies a terminal transition guarded against double commits.
// The WHERE clause excludes terminal rows, so whichever update commits first
// wins and every later attempt affects zero rows.
func (r *JobRepository) terminal(ctx context.Context, jobID string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ? AND status NOT IN ?", jobID, terminalStatuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update job status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return r.ensureExists(ctx, jobID)
	}
	return nil
}

// ensureExists distinguishes "no-op because already terminal" from "no such job"
func (r *JobRepository) ensureExists(ctx context.Context, jobID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where(&models.Job{JobID: jobID}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check job existence: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("job not found: %s", jobID)
	}
	return nil
}
