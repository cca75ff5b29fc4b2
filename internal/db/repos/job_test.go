package repos

import (
	"encoding/json"

	"github.com/userpipe/userpipe/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestCreateAndGetJob() {
	job := s.createTestJob()
	s.Equal(models.JobStatusPending, job.Status)

	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(job.JobID, got.JobID)
	s.Equal(models.JobStatusPending, got.Status)
	s.Nil(got.CompletedAt)
}

func (s *DBRepositoryTestSuite) TestGetJobNotFound() {
	_, err := s.jobRepo.GetByJobID(s.ctx, "no-such-job")
	s.Require().Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *DBRepositoryTestSuite) TestMarkRunningIsIdempotent() {
	job := s.createTestJob()

	s.Require().NoError(s.jobRepo.MarkRunning(s.ctx, job.JobID))
	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusRunning, got.Status)

	// A redelivered begin message must not error or change anything.
	s.Require().NoError(s.jobRepo.MarkRunning(s.ctx, job.JobID))
	got, err = s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusRunning, got.Status)
}

func (s *DBRepositoryTestSuite) TestMarkRunningDoesNotRegressTerminal() {
	job := s.createTestJob()
	s.Require().NoError(s.jobRepo.Complete(s.ctx, job.JobID, json.RawMessage(`{"users_created":5}`)))

	s.Require().NoError(s.jobRepo.MarkRunning(s.ctx, job.JobID))
	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCompleted, got.Status)
}

func (s *DBRepositoryTestSuite) TestMarkRunningUnknownJob() {
	err := s.jobRepo.MarkRunning(s.ctx, "no-such-job")
	s.Require().Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *DBRepositoryTestSuite) TestCompleteSetsResultAndTimestamp() {
	job := s.createTestJob()

	result := json.RawMessage(`{"users_created":5,"user_ids":[1,2,3,4,5]}`)
	s.Require().NoError(s.jobRepo.Complete(s.ctx, job.JobID, result))

	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.JSONEq(string(result), string(got.Result))
	s.Require().NotNil(got.CompletedAt)
}

func (s *DBRepositoryTestSuite) TestFirstTerminalTransitionWins() {
	job := s.createTestJob()
	s.Require().NoError(s.jobRepo.Fail(s.ctx, job.JobID, "stage fetch_users: provider unreachable"))

	// A late completed write must be a silent no-op.
	s.Require().NoError(s.jobRepo.Complete(s.ctx, job.JobID, json.RawMessage(`{"users_created":5}`)))

	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusFailed, got.Status)
	s.Contains(got.Error, "provider unreachable")
	s.Empty(got.Result)
}

func (s *DBRepositoryTestSuite) TestCompleteThenFailKeepsCompleted() {
	job := s.createTestJob()
	s.Require().NoError(s.jobRepo.Complete(s.ctx, job.JobID, json.RawMessage(`{"users_created":2}`)))
	s.Require().NoError(s.jobRepo.Fail(s.ctx, job.JobID, "late failure"))

	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCompleted, got.Status)
	s.Empty(got.Error)
}

func (s *DBRepositoryTestSuite) TestCompleteIsIdempotent() {
	job := s.createTestJob()
	s.Require().NoError(s.jobRepo.Complete(s.ctx, job.JobID, json.RawMessage(`{"users_created":5}`)))

	first, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)

	// Redelivered complete message carries the same result.
	s.Require().NoError(s.jobRepo.Complete(s.ctx, job.JobID, json.RawMessage(`{"users_created":5}`)))

	second, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(first.Status, second.Status)
	s.Require().NotNil(second.CompletedAt)
	s.True(first.CompletedAt.Equal(*second.CompletedAt))
}

func (s *DBRepositoryTestSuite) TestTerminalTransitionUnknownJob() {
	err := s.jobRepo.Complete(s.ctx, "no-such-job", nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *DBRepositoryTestSuite) TestUpdateStatusDispatch() {
	job := s.createTestJob()

	s.Require().NoError(s.jobRepo.UpdateStatus(s.ctx, job.JobID, models.JobStatusRunning, nil, ""))
	got, err := s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusRunning, got.Status)

	s.Require().NoError(s.jobRepo.UpdateStatus(s.ctx, job.JobID, models.JobStatusFailed, nil, "boom"))
	got, err = s.jobRepo.GetByJobID(s.ctx, job.JobID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusFailed, got.Status)

	err = s.jobRepo.UpdateStatus(s.ctx, job.JobID, models.JobStatusPending, nil, "")
	s.Require().Error(err)
}

func (s *DBRepositoryTestSuite) TestListAndCountByStatus() {
	first := s.createTestJob()
	second := s.createTestJob()
	s.Require().NoError(s.jobRepo.Fail(s.ctx, second.JobID, "boom"))

	all, err := s.jobRepo.List(s.ctx, models.JobStatusUnknown, nil)
	s.Require().NoError(err)
	s.Len(all, 2)

	pending, err := s.jobRepo.List(s.ctx, models.JobStatusPending, nil)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(first.JobID, pending[0].JobID)

	failedCount, err := s.jobRepo.Count(s.ctx, models.JobStatusFailed)
	s.Require().NoError(err)
	s.Equal(int64(1), failedCount)

	total, err := s.jobRepo.Count(s.ctx, models.JobStatusUnknown)
	s.Require().NoError(err)
	s.Equal(int64(2), total)
}
