package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/userpipe/userpipe/internal/db/models"
)

// UserRepository handles database operations for user entities
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to the given transaction. Pipeline
// stages that run inside a resource scope use this so their writes commit
// or roll back with the scope.
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

// BulkCreate inserts the given users, skipping rows whose username already
// exists. The upsert keeps the save stage idempotent under at-least-once
// delivery: re-running the insert after a lease timeout cannot produce
// duplicate rows. Returns only the users actually inserted, with their IDs
// populated.
func (r *UserRepository) BulkCreate(ctx context.Context, users []*models.User) ([]models.User, error) {
	created := make([]models.User, 0, len(users))
	for _, user := range users {
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: models.UserUsernameField}},
				DoNothing: true,
			}).
			Create(user)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to insert user %q: %w", user.Username, res.Error)
		}
		if res.RowsAffected > 0 {
			created = append(created, *user)
		}
	}
	return created, nil
}

// GetByUsername retrieves a user by their username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(&models.User{Username: username}).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// List retrieves users with pagination
func (r *UserRepository) List(ctx context.Context, opts *models.ListOptions) ([]models.User, error) {
	opts = opts.WithDefaults()
	var users []models.User
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Limit(opts.Limit).Offset(opts.Offset).
		Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}
