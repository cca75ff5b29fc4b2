package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/userpipe/userpipe/internal/db/models"
)

// claimCandidates is how many pending rows a single claim pass inspects
// before giving up. Several workers racing for the head of the queue fall
// through to the next candidate instead of returning empty-handed.
const claimCandidates = 5

// MessageRepository handles database operations for the durable queue table
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of MessageRepository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Enqueue stores a new message in the pending state
func (r *MessageRepository) Enqueue(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ClaimNext leases the oldest deliverable pending message. The claim is a
// conditional update guarded on the pending state, so two workers can never
// lease the same row. Returns nil when the queue is empty.
func (r *MessageRepository) ClaimNext(ctx context.Context, queue string, leaseTimeout time.Duration) (*models.Message, error) {
	if err := r.reclaimExpired(ctx, queue); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var candidates []models.Message
	err := r.db.WithContext(ctx).
		Where("queue = ? AND state = ? AND not_before <= ?", queue, models.MessageStatePending, now).
		Order("id ASC").
		Limit(claimCandidates).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending messages: %w", err)
	}

	for i := range candidates {
		leaseUntil := now.Add(leaseTimeout)
		res := r.db.WithContext(ctx).Model(&models.Message{}).
			Where("id = ? AND state = ?", candidates[i].ID, models.MessageStatePending).
			Updates(map[string]interface{}{
				"state":            models.MessageStateLeased,
				"attempts":         gorm.Expr("attempts + 1"),
				"lease_expires_at": leaseUntil,
			})
		if res.Error != nil {
			return nil, fmt.Errorf("failed to claim message: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Another worker won the race for this row
			continue
		}

		var claimed models.Message
		if err := r.db.WithContext(ctx).First(&claimed, candidates[i].ID).Error; err != nil {
			return nil, fmt.Errorf("failed to load claimed message: %w", err)
		}
		return &claimed, nil
	}
	return nil, nil
}

// Ack discards an acknowledged message
func (r *MessageRepository) Ack(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Unscoped().Delete(&models.Message{}, id).Error
}

// Requeue releases a leased message back to pending, deliverable after the
// given delay. The attempt count is preserved.
func (r *MessageRepository) Requeue(ctx context.Context, id uint, delay time.Duration) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND state = ?", id, models.MessageStateLeased).
		Updates(map[string]interface{}{
			"state":            models.MessageStatePending,
			"not_before":       time.Now().UTC().Add(delay),
			"lease_expires_at": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to requeue message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("message %d is not leased", id)
	}
	return nil
}

// RouteToFailure rewrites a leased message so its next delivery targets the
// designated failure stage. The attempt count restarts because the failure
// stage is a fresh unit of work.
func (r *MessageRepository) RouteToFailure(ctx context.Context, id uint, failureStage, errText string) error {
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND state = ?", id, models.MessageStateLeased).
		Updates(map[string]interface{}{
			"failed_stage":     gorm.Expr("stage"),
			"stage":            failureStage,
			"error_text":       errText,
			"attempts":         0,
			"state":            models.MessageStatePending,
			"not_before":       time.Now().UTC(),
			"lease_expires_at": nil,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to route message to failure stage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("message %d is not leased", id)
	}
	return nil
}

// PendingCount returns the number of deliverable and delayed pending messages
func (r *MessageRepository) PendingCount(ctx context.Context, queue string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("queue = ? AND state = ?", queue, models.MessageStatePending).
		Count(&count).Error
	return count, err
}

// GetByMessageID retrieves a message by its external identifier
func (r *MessageRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).Where(&models.Message{MessageID: messageID}).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("message not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// reclaimExpired returns leased messages whose lease timed out to the
// pending state. Attempts are kept so redelivery still counts against the
// stage budget.
func (r *MessageRepository) reclaimExpired(ctx context.Context, queue string) error {
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("queue = ? AND state = ? AND lease_expires_at <= ?",
			queue, models.MessageStateLeased, time.Now().UTC()).
		Updates(map[string]interface{}{
			"state":            models.MessageStatePending,
			"lease_expires_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reclaim expired leases: %w", err)
	}
	return nil
}
