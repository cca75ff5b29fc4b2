package repos

import (
	"github.com/userpipe/userpipe/internal/db/models"
)

func (s *DBRepositoryTestSuite) TestBulkCreateAssignsIDs() {
	users := []*models.User{
		{Name: "Leanne Graham", Username: "Bret", Email: "Sincere@april.biz"},
		{Name: "Ervin Howell", Username: "Antonette", Email: "Shanna@melissa.tv"},
	}

	created, err := s.userRepo.BulkCreate(s.ctx, users)
	s.Require().NoError(err)
	s.Require().Len(created, 2)
	for _, user := range created {
		s.NotZero(user.ID)
	}
}

func (s *DBRepositoryTestSuite) TestBulkCreateSkipsExistingUsernames() {
	s.createTestUser("Bret", "Sincere@april.biz")

	created, err := s.userRepo.BulkCreate(s.ctx, []*models.User{
		{Name: "Leanne Graham", Username: "Bret", Email: "other@april.biz"},
		{Name: "Ervin Howell", Username: "Antonette", Email: "Shanna@melissa.tv"},
	})
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal("Antonette", created[0].Username)

	count, err := s.userRepo.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *DBRepositoryTestSuite) TestBulkCreateIsIdempotent() {
	users := []*models.User{
		{Name: "Leanne Graham", Username: "Bret", Email: "Sincere@april.biz"},
		{Name: "Ervin Howell", Username: "Antonette", Email: "Shanna@melissa.tv"},
	}

	created, err := s.userRepo.BulkCreate(s.ctx, users)
	s.Require().NoError(err)
	s.Len(created, 2)

	// Re-running the same insert after a redelivery creates nothing new.
	again := []*models.User{
		{Name: "Leanne Graham", Username: "Bret", Email: "Sincere@april.biz"},
		{Name: "Ervin Howell", Username: "Antonette", Email: "Shanna@melissa.tv"},
	}
	created, err = s.userRepo.BulkCreate(s.ctx, again)
	s.Require().NoError(err)
	s.Empty(created)

	count, err := s.userRepo.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), count)
}

func (s *DBRepositoryTestSuite) TestGetByUsername() {
	s.createTestUser("Bret", "Sincere@april.biz")

	got, err := s.userRepo.GetByUsername(s.ctx, "Bret")
	s.Require().NoError(err)
	s.Equal("Sincere@april.biz", got.Email)

	_, err = s.userRepo.GetByUsername(s.ctx, "nobody")
	s.Require().Error(err)
	s.Contains(err.Error(), "not found")
}

func (s *DBRepositoryTestSuite) TestListUsersPagination() {
	s.createTestUser("Bret", "Sincere@april.biz")
	s.createTestUser("Antonette", "Shanna@melissa.tv")
	s.createTestUser("Samantha", "Nathan@yesenia.net")

	page, err := s.userRepo.List(s.ctx, &models.ListOptions{Limit: 2})
	s.Require().NoError(err)
	s.Len(page, 2)

	rest, err := s.userRepo.List(s.ctx, &models.ListOptions{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Len(rest, 1)
}
