package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/userpipe/userpipe/internal/db/models"
	"github.com/userpipe/userpipe/internal/db/repos"
	"github.com/userpipe/userpipe/internal/logger"
	"github.com/userpipe/userpipe/internal/pipeline"
)

// Job provides business logic for job status records and is the trigger
// entry point for the pipeline
type Job struct {
	repo  *repos.JobRepository
	pipe  *pipeline.Pipeline
	queue pipeline.Queue
}

// NewJobService creates a new job service instance
func NewJobService(repo *repos.JobRepository, pipe *pipeline.Pipeline, queue pipeline.Queue) *Job {
	return &Job{
		repo:  repo,
		pipe:  pipe,
		queue: queue,
	}
}

// Trigger creates a pending job record and enqueues the first pipeline
// stage. When the enqueue fails the record stays pending and the error is
// returned; callers that need a bound on pending jobs must apply an external
// timeout.
func (s *Job) Trigger(ctx context.Context, jobID string) (*models.Job, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	job, err := s.repo.Create(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.pipe.Run(ctx, s.queue, jobID, nil); err != nil {
		logger.Errorf("Failed to start pipeline for job %s: %v", jobID, err)
		return job, err
	}

	logger.Infof("Started %s pipeline for job %s", s.pipe.Name(), jobID)
	return job, nil
}

// Get retrieves a job by its external identifier
func (s *Job) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return s.repo.GetByJobID(ctx, jobID)
}

// List retrieves jobs with pagination, optionally filtered by status
func (s *Job) List(ctx context.Context, status models.JobStatus, opts *models.ListOptions) ([]models.Job, error) {
	return s.repo.List(ctx, status, opts)
}

// Count returns the number of jobs, optionally filtered by status
func (s *Job) Count(ctx context.Context, status models.JobStatus) (int64, error) {
	return s.repo.Count(ctx, status)
}

