package repos

import (
	"time"

	"github.com/userpipe/userpipe/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestClaimNextLeasesOldestFirst() {
	first := s.enqueueTestMessage("fetch_users")
	s.enqueueTestMessage("fetch_users")

	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)
	s.Equal(first.MessageID, claimed.MessageID)
	s.Equal(models.MessageStateLeased, claimed.State)
	s.Equal(1, claimed.Attempts)
	s.Require().NotNil(claimed.LeaseExpiresAt)
}

func (s *DBRepositoryTestSuite) TestClaimNextSkipsLeasedRows() {
	s.enqueueTestMessage("fetch_users")

	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	// The only row is leased; nothing left to claim.
	next, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Nil(next)
}

func (s *DBRepositoryTestSuite) TestClaimNextEmptyQueue() {
	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Nil(claimed)
}

func (s *DBRepositoryTestSuite) TestAckDiscardsMessage() {
	s.enqueueTestMessage("fetch_users")
	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	s.Require().NoError(s.messageRepo.Ack(s.ctx, claimed.ID))

	count, err := s.messageRepo.PendingCount(s.ctx, testQueue)
	s.Require().NoError(err)
	s.Zero(count)

	_, err = s.messageRepo.GetByMessageID(s.ctx, claimed.MessageID)
	s.Require().Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *DBRepositoryTestSuite) TestRequeuePreservesAttempts() {
	s.enqueueTestMessage("fetch_users")
	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	s.Require().NoError(s.messageRepo.Requeue(s.ctx, claimed.ID, 0))

	reclaimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(reclaimed)
	s.Equal(claimed.MessageID, reclaimed.MessageID)
	s.Equal(2, reclaimed.Attempts)
}

func (s *DBRepositoryTestSuite) TestRequeueDelayPostponesDelivery() {
	s.enqueueTestMessage("fetch_users")
	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	s.Require().NoError(s.messageRepo.Requeue(s.ctx, claimed.ID, time.Hour))

	next, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Nil(next, "delayed message must not be deliverable yet")
}

func (s *DBRepositoryTestSuite) TestRequeueRequiresLease() {
	msg := s.enqueueTestMessage("fetch_users")
	err := s.messageRepo.Requeue(s.ctx, msg.ID, 0)
	s.Require().Error(err)
	s.Contains(err.Error(), "not leased")
}

func (s *DBRepositoryTestSuite) TestExpiredLeaseIsReclaimed() {
	s.enqueueTestMessage("fetch_users")
	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	// Simulate a worker crash by expiring the lease.
	expired := time.Now().UTC().Add(-time.Second)
	err = s.db.Model(&models.Message{}).
		Where("id = ?", claimed.ID).
		Update("lease_expires_at", expired).Error
	s.Require().NoError(err)

	reclaimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(reclaimed)
	s.Equal(claimed.MessageID, reclaimed.MessageID)
	s.Equal(2, reclaimed.Attempts, "redelivery counts against the budget")
}

func (s *DBRepositoryTestSuite) TestRouteToFailureRewritesMessage() {
	s.enqueueTestMessage("save_users")
	claimed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(claimed)

	s.Require().NoError(s.messageRepo.RouteToFailure(s.ctx, claimed.ID, "fail_job", "persistence constraint violated"))

	routed, err := s.messageRepo.ClaimNext(s.ctx, testQueue, time.Minute)
	s.Require().NoError(err)
	s.Require().NotNil(routed)
	s.Equal("fail_job", routed.Stage)
	s.Equal("save_users", routed.FailedStage)
	s.Equal("persistence constraint violated", routed.ErrorText)
	s.Equal(1, routed.Attempts, "failure stage starts a fresh budget")
}

func (s *DBRepositoryTestSuite) TestRouteToFailureRequiresLease() {
	msg := s.enqueueTestMessage("fetch_users")
	err := s.messageRepo.RouteToFailure(s.ctx, msg.ID, "fail_job", "boom")
	s.Require().Error(err)
	s.Contains(err.Error(), "not leased")
}

func (s *DBRepositoryTestSuite) TestMessagesScopedToQueue() {
	s.enqueueTestMessage("fetch_users")

	claimed, err := s.messageRepo.ClaimNext(s.ctx, "other.queue", time.Minute)
	s.Require().NoError(err)
	s.Nil(claimed)
}
