package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/db/repos"
	"github.com/userpipe/userpipe/internal/logger"
	"github.com/userpipe/userpipe/internal/pipeline"
	"github.com/userpipe/userpipe/internal/types"
)

// Stage names of the process-users pipeline
const (
	// StageBegin marks the job running before any work starts
	StageBegin = "begin_job"
	// StageFetch pulls raw user records from the external provider
	StageFetch = "fetch_users"
	// StageTransform validates and converts records to the internal schema
	StageTransform = "transform_users"
	// StageDelay applies the simulated processing delay
	StageDelay = "processing_delay"
	// StageSave bulk-inserts the validated records inside a resource scope
	StageSave = "save_users"
	// StageComplete commits the completed terminal status with the result
	StageComplete = "complete_job"
	// StageFail is the shared failure handler reachable from every stage
	StageFail = "fail_job"
)

// PipelineName is the name of the process-users pipeline
const PipelineName = "process_users"

// StageSet binds the process-users stage handlers to their collaborators.
// It writes job status through the repository directly; the job service sits
// above the pipeline, not inside it.
type StageSet struct {
	jobs    *repos.JobRepository
	users   *User
	fetcher *Fetcher
	delay   config.DelayConfig
}

// NewStageSet creates the stage handler set for the process-users pipeline
func NewStageSet(jobs *repos.JobRepository, users *User, fetcher *Fetcher, delay config.DelayConfig) *StageSet {
	return &StageSet{
		jobs:    jobs,
		users:   users,
		fetcher: fetcher,
		delay:   delay,
	}
}

// Pipeline declares the ordered stage chain and its failure handler. The
// list is resolved once here; nothing is looked up at dispatch time.
func (s *StageSet) Pipeline() (*pipeline.Pipeline, error) {
	stages := []pipeline.StageDescriptor{
		{Name: StageBegin, Handler: s.beginJob, MaxAttempts: 3},
		{Name: StageFetch, Handler: s.fetchUsers, MaxAttempts: 3},
		{Name: StageTransform, Handler: s.transformUsers, MaxAttempts: 3},
		{Name: StageDelay, Handler: s.processingDelay, MaxAttempts: 3},
		{Name: StageSave, Handler: s.saveUsers, NeedsScope: true, MaxAttempts: 3},
		{Name: StageComplete, Handler: s.completeJob, MaxAttempts: 5},
	}
	failure := pipeline.StageDescriptor{Name: StageFail, Handler: s.failJob, MaxAttempts: 1}
	return pipeline.Define(PipelineName, stages, failure)
}

// beginJob marks the job running. The transition is idempotent, so a
// redelivered begin message is harmless.
func (s *StageSet) beginJob(ctx context.Context, ec *pipeline.ExecContext, payload json.RawMessage) (json.RawMessage, error) {
	if err := s.jobs.MarkRunning(ctx, ec.JobID); err != nil {
		return nil, err
	}
	logger.Infof("Job %s: pipeline started", ec.JobID)
	return payload, nil
}

// fetchUsers pulls the raw user list from the external provider
func (s *StageSet) fetchUsers(ctx context.Context, ec *pipeline.ExecContext, _ json.RawMessage) (json.RawMessage, error) {
	users, err := s.fetcher.FetchUsers(ctx)
	if err != nil {
		return nil, err
	}

	logger.Infof("Job %s: fetched %d users from external API", ec.JobID, len(users))
	return json.Marshal(users)
}

// transformUsers validates each raw record and converts it to the internal
// schema. Any malformed record fails the whole batch terminally.
func (s *StageSet) transformUsers(_ context.Context, ec *pipeline.ExecContext, payload json.RawMessage) (json.RawMessage, error) {
	var raw []types.ExternalUser
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, pipeline.NewValidationError("transform input is not a user list: %v", err)
	}

	transformed := make([]types.UserCreate, 0, len(raw))
	for i := range raw {
		user, err := raw[i].Transform()
		if err != nil {
			return nil, pipeline.NewValidationError("record %d (%s): %v", i, raw[i].Username, err)
		}
		transformed = append(transformed, *user)
	}

	logger.Infof("Job %s: transformed %d users", ec.JobID, len(transformed))
	return json.Marshal(transformed)
}

// processingDelay sleeps for a random duration within the configured bounds
// and passes the payload through unchanged
func (s *StageSet) processingDelay(ctx context.Context, ec *pipeline.ExecContext, payload json.RawMessage) (json.RawMessage, error) {
	delay := time.Duration(s.delay.MinSeconds) * time.Second
	if spread := s.delay.MaxSeconds - s.delay.MinSeconds; spread > 0 {
		delay += time.Duration(rand.Intn(spread+1)) * time.Second
	}

	logger.Infof("Job %s: simulating processing delay of %s", ec.JobID, delay)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}
	return payload, nil
}

// saveUsers bulk-inserts the transformed records inside this invocation's
// resource scope and produces the final job result
func (s *StageSet) saveUsers(ctx context.Context, ec *pipeline.ExecContext, payload json.RawMessage) (json.RawMessage, error) {
	var users []types.UserCreate
	if err := json.Unmarshal(payload, &users); err != nil {
		return nil, pipeline.NewValidationError("save input is not a user list: %v", err)
	}

	created, err := s.users.BulkCreate(ctx, ec.Tx, users)
	if err != nil {
		return nil, err
	}

	result := types.ProcessUsersResult{
		UsersCreated: len(created),
		UserIDs:      make([]uint, 0, len(created)),
	}
	for i := range created {
		result.UserIDs = append(result.UserIDs, created[i].ID)
	}

	logger.Infof("Job %s: saved %d users", ec.JobID, result.UsersCreated)
	return json.Marshal(result)
}

// completeJob commits the completed terminal status carrying the final
// result. The underlying update is idempotent under redelivery.
func (s *StageSet) completeJob(ctx context.Context, ec *pipeline.ExecContext, payload json.RawMessage) (json.RawMessage, error) {
	if err := s.jobs.Complete(ctx, ec.JobID, payload); err != nil {
		return nil, err
	}
	logger.Infof("Job %s: completed", ec.JobID)
	return nil, nil
}

// failJob is the shared failure handler. It performs exactly one status
// update to failed and never raises: an error here has no further
// escalation path, so it is logged and swallowed.
func (s *StageSet) failJob(ctx context.Context, ec *pipeline.ExecContext, _ json.RawMessage) (json.RawMessage, error) {
	reason := ec.FailureReason
	if reason == "" {
		reason = "unknown failure"
	}
	if ec.FailedStage != "" {
		reason = fmt.Sprintf("stage %s: %s", ec.FailedStage, reason)
	}

	if err := s.jobs.Fail(ctx, ec.JobID, reason); err != nil {
		logger.Errorf("Failure handler could not record failure for job %s: %v", ec.JobID, err)
	} else {
		logger.Warnf("Job %s: failed: %s", ec.JobID, reason)
	}
	return nil, nil
}
