package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/userpipe/userpipe/internal/db"
	"github.com/userpipe/userpipe/internal/db/models"
	"github.com/userpipe/userpipe/internal/db/repos"
	"github.com/userpipe/userpipe/internal/pipeline"
	"github.com/userpipe/userpipe/internal/types"
)

// User provides business logic for user operations
type User struct {
	repo *repos.UserRepository
}

// NewUserService creates a new user service instance
func NewUserService(repo *repos.UserRepository) *User {
	return &User{repo: repo}
}

// List retrieves users with pagination
func (s *User) List(ctx context.Context, opts *models.ListOptions) ([]models.User, error) {
	return s.repo.List(ctx, opts)
}

// Count returns the total number of users
func (s *User) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// BulkCreate persists the validated records inside the given transaction.
// Rows whose username already exists are skipped, which keeps the save stage
// safe under redelivery. A duplicate-key violation that still gets through
// (for example a conflicting email) is a terminal constraint error.
func (s *User) BulkCreate(ctx context.Context, tx *gorm.DB, users []types.UserCreate) ([]models.User, error) {
	rows := make([]*models.User, 0, len(users))
	for i := range users {
		row, err := users[i].ToModel()
		if err != nil {
			return nil, pipeline.NewValidationError("user %q: %v", users[i].Username, err)
		}
		rows = append(rows, row)
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}

	created, err := repo.BulkCreate(ctx, rows)
	if err != nil {
		if db.IsDuplicateKeyError(err) {
			return nil, &pipeline.ConstraintError{Err: err}
		}
		return nil, err
	}
	return created, nil
}
