// Package queue provides the durable queue transports the pipeline runs on.
// The transport is chosen by an explicit configuration struct at process
// start; there is no process-wide default broker.
package queue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/db/models"
	"github.com/userpipe/userpipe/internal/db/repos"
	"github.com/userpipe/userpipe/internal/pipeline"
)

// PostgresQueue is a durable queue on the primary database. Leases are rows
// claimed by a conditional update; an expired lease makes the row
// deliverable again, which gives at-least-once delivery.
type PostgresQueue struct {
	repo         *repos.MessageRepository
	name         string
	leaseTimeout time.Duration
}

// NewPostgresQueue creates a database-backed queue from the given config
func NewPostgresQueue(db *gorm.DB, cfg config.QueueConfig) *PostgresQueue {
	leaseTimeout := cfg.LeaseTimeout
	if leaseTimeout <= 0 {
		leaseTimeout = 5 * time.Minute
	}
	return &PostgresQueue{
		repo:         repos.NewMessageRepository(db),
		name:         cfg.QueueName,
		leaseTimeout: leaseTimeout,
	}
}

// Enqueue stores the message durably and returns its id
func (q *PostgresQueue) Enqueue(ctx context.Context, msg *pipeline.Message) (string, error) {
	row := &models.Message{
		MessageID:    msg.ID,
		Queue:        q.name,
		JobID:        msg.JobID,
		Stage:        msg.Stage,
		Payload:      msg.Payload,
		Attempts:     msg.Attempt,
		State:        models.MessageStatePending,
		NotBefore:    time.Now().UTC(),
		FailureStage: msg.FailureStage,
		FailedStage:  msg.FailedStage,
		ErrorText:    msg.Error,
	}
	if err := q.repo.Enqueue(ctx, row); err != nil {
		return "", pipeline.NewTransportError("enqueue", err)
	}
	return row.MessageID, nil
}

// Dequeue leases the next deliverable message, or returns (nil, nil) when
// the queue is empty
func (q *PostgresQueue) Dequeue(ctx context.Context) (*pipeline.Message, error) {
	row, err := q.repo.ClaimNext(ctx, q.name, q.leaseTimeout)
	if err != nil {
		return nil, pipeline.NewTransportError("dequeue", err)
	}
	if row == nil {
		return nil, nil
	}
	return &pipeline.Message{
		ID:           row.MessageID,
		JobID:        row.JobID,
		Stage:        row.Stage,
		Payload:      row.Payload,
		Attempt:      row.Attempts,
		FailureStage: row.FailureStage,
		FailedStage:  row.FailedStage,
		Error:        row.ErrorText,
		Receipt:      row.ID,
	}, nil
}

// Ack discards a leased message
func (q *PostgresQueue) Ack(ctx context.Context, msg *pipeline.Message) error {
	id, err := q.rowID(msg)
	if err != nil {
		return err
	}
	if err := q.repo.Ack(ctx, id); err != nil {
		return pipeline.NewTransportError("ack", err)
	}
	return nil
}

// Requeue releases a leased message for redelivery after the delay
func (q *PostgresQueue) Requeue(ctx context.Context, msg *pipeline.Message, delay time.Duration) error {
	id, err := q.rowID(msg)
	if err != nil {
		return err
	}
	if err := q.repo.Requeue(ctx, id, delay); err != nil {
		return pipeline.NewTransportError("requeue", err)
	}
	return nil
}

// RouteToFailure redirects a leased message to its failure stage
func (q *PostgresQueue) RouteToFailure(ctx context.Context, msg *pipeline.Message, cause error) error {
	id, err := q.rowID(msg)
	if err != nil {
		return err
	}
	if msg.FailureStage == "" {
		return fmt.Errorf("message %s has no failure stage", msg.ID)
	}
	if err := q.repo.RouteToFailure(ctx, id, msg.FailureStage, cause.Error()); err != nil {
		return pipeline.NewTransportError("route to failure", err)
	}
	return nil
}

// rowID recovers the database row id from the lease receipt
func (q *PostgresQueue) rowID(msg *pipeline.Message) (uint, error) {
	id, ok := msg.Receipt.(uint)
	if !ok {
		return 0, fmt.Errorf("message %s has no database lease receipt", msg.ID)
	}
	return id, nil
}
