package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/logger"
	"github.com/userpipe/userpipe/internal/pipeline"
)

// WorkerPool executes pipeline messages on a fixed number of concurrent
// slots. Each slot leases messages independently, so one slot blocking on
// I/O never starves the others.
type WorkerPool struct {
	queue  pipeline.Queue
	pipe   *pipeline.Pipeline
	scopes *pipeline.ScopeRunner
	policy pipeline.RetryPolicy
	cfg    config.WorkerConfig
}

// NewWorkerPool creates a worker pool bound to the given queue and pipeline
func NewWorkerPool(queue pipeline.Queue, pipe *pipeline.Pipeline, scopes *pipeline.ScopeRunner, policy pipeline.RetryPolicy, cfg config.WorkerConfig) *WorkerPool {
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &WorkerPool{
		queue:  queue,
		pipe:   pipe,
		scopes: scopes,
		policy: policy,
		cfg:    cfg,
	}
}

// Start launches the execution slots. They stop when ctx is cancelled; the
// WaitGroup tracks them for shutdown.
func (w *WorkerPool) Start(ctx context.Context, wg *sync.WaitGroup) {
	for i := 1; i <= w.cfg.Slots; i++ {
		wg.Add(1)
		go w.runSlot(ctx, wg, i)
	}
	logger.Infof("Worker pool started with %d slots", w.cfg.Slots)
}

func (w *WorkerPool) runSlot(ctx context.Context, wg *sync.WaitGroup, slot int) {
	defer wg.Done()
	logger.Debugf("Worker slot %d started", slot)

	for {
		select {
		case <-ctx.Done():
			logger.Debugf("Worker slot %d received shutdown signal, stopping", slot)
			return
		default:
		}

		if !w.processOne(ctx, slot) {
			w.sleep(ctx, w.cfg.PollInterval)
		}
	}
}

// processOne leases and executes a single message. Returns false when the
// queue was empty or unavailable so the slot backs off before polling again.
func (w *WorkerPool) processOne(ctx context.Context, slot int) bool {
	msg, err := w.queue.Dequeue(ctx)
	if err != nil {
		logger.Errorf("Worker slot %d: dequeue failed: %v", slot, err)
		return false
	}
	if msg == nil {
		return false
	}

	w.execute(ctx, slot, msg)
	return true
}

func (w *WorkerPool) execute(ctx context.Context, slot int, msg *pipeline.Message) {
	stage, ok := w.pipe.Descriptor(msg.Stage)
	if !ok {
		logger.Errorf("Worker slot %d: message %s targets unknown stage %s", slot, msg.ID, msg.Stage)
		if err := w.queue.RouteToFailure(ctx, msg, fmt.Errorf("unknown stage: %s", msg.Stage)); err != nil {
			logger.Errorf("Worker slot %d: could not route message %s to failure: %v", slot, msg.ID, err)
		}
		return
	}

	ec := &pipeline.ExecContext{
		JobID:         msg.JobID,
		Stage:         msg.Stage,
		Attempt:       msg.Attempt,
		FailedStage:   msg.FailedStage,
		FailureReason: msg.Error,
	}

	logger.Debugf("Worker slot %d: executing stage %s for job %s (attempt %d)", slot, msg.Stage, msg.JobID, msg.Attempt)
	out, err := w.scopes.Execute(ctx, stage, ec, msg.Payload)
	if err == nil {
		w.succeed(ctx, slot, msg, out)
		return
	}

	if w.pipe.IsFailureStage(msg.Stage) {
		w.handleFailureStageError(ctx, slot, msg, stage, err)
		return
	}

	if w.policy.ShouldRetry(stage, msg.Attempt, err) {
		delay := w.policy.Backoff(msg.Attempt)
		logger.WarnWithFields("Stage failed, retrying", map[string]interface{}{
			"job_id":  msg.JobID,
			"stage":   msg.Stage,
			"attempt": msg.Attempt,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		if rqErr := w.queue.Requeue(ctx, msg, delay); rqErr != nil {
			// The lease will expire and the message comes back on its own.
			logger.Errorf("Worker slot %d: requeue of message %s failed: %v", slot, msg.ID, rqErr)
		}
		return
	}

	cause := err
	if !pipeline.IsTerminal(err) {
		cause = &pipeline.RetryBudgetError{Stage: stage.Name, Attempts: msg.Attempt, Err: err}
	}
	logger.WarnWithFields("Stage failed terminally, routing to failure handler", map[string]interface{}{
		"job_id": msg.JobID,
		"stage":  msg.Stage,
		"error":  cause.Error(),
	})
	if rtErr := w.queue.RouteToFailure(ctx, msg, cause); rtErr != nil {
		logger.Errorf("Worker slot %d: could not route message %s to failure: %v", slot, msg.ID, rtErr)
	}
}

// succeed enqueues the continuation before acknowledging, so a crash in
// between redelivers this stage instead of silently dropping the chain.
// Stage handlers are idempotent under redelivery, which makes that safe.
func (w *WorkerPool) succeed(ctx context.Context, slot int, msg *pipeline.Message, out []byte) {
	if next := w.pipe.Continuation(msg, out); next != nil {
		if _, err := w.queue.Enqueue(ctx, next); err != nil {
			logger.Errorf("Worker slot %d: could not enqueue continuation for job %s after stage %s: %v",
				slot, msg.JobID, msg.Stage, err)
			return
		}
	}
	if err := w.queue.Ack(ctx, msg); err != nil {
		logger.Errorf("Worker slot %d: ack of message %s failed: %v", slot, msg.ID, err)
	}
}

// handleFailureStageError deals with the failure handler itself erroring,
// which should not happen since it swallows its own errors. Retry while the
// budget lasts, then drop the message rather than loop forever.
func (w *WorkerPool) handleFailureStageError(ctx context.Context, slot int, msg *pipeline.Message, stage pipeline.StageDescriptor, err error) {
	if w.policy.ShouldRetry(stage, msg.Attempt, err) {
		if rqErr := w.queue.Requeue(ctx, msg, w.policy.Backoff(msg.Attempt)); rqErr != nil {
			logger.Errorf("Worker slot %d: requeue of failure message %s failed: %v", slot, msg.ID, rqErr)
		}
		return
	}
	logger.Errorf("Worker slot %d: dropping failure message %s for job %s: %v", slot, msg.ID, msg.JobID, err)
	if ackErr := w.queue.Ack(ctx, msg); ackErr != nil {
		logger.Errorf("Worker slot %d: ack of failure message %s failed: %v", slot, msg.ID, ackErr)
	}
}

func (w *WorkerPool) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
