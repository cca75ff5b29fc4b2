// Package pipeline implements the asynchronous job pipeline: stage
// descriptors, the queue contract, the retry policy, the resource scope, and
// the orchestration that chains stages through queued continuations.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Pipeline is an ordered chain of stage descriptors plus a single failure
// handler reachable from every stage. The pipeline never executes handlers
// itself; it only wires continuations. Execution belongs to the worker pool.
type Pipeline struct {
	name    string
	stages  []StageDescriptor
	failure StageDescriptor
	index   map[string]int
}

// Define builds a pipeline from a statically declared ordered stage list and
// one failure handler. Stage names must be unique and every descriptor must
// carry a handler.
func Define(name string, stages []StageDescriptor, failure StageDescriptor) (*Pipeline, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline %s has no stages", name)
	}
	if failure.Name == "" || failure.Handler == nil {
		return nil, fmt.Errorf("pipeline %s has no failure handler", name)
	}

	index := make(map[string]int, len(stages))
	for i, stage := range stages {
		if stage.Name == "" {
			return nil, fmt.Errorf("pipeline %s: stage %d has no name", name, i)
		}
		if stage.Handler == nil {
			return nil, fmt.Errorf("pipeline %s: stage %s has no handler", name, stage.Name)
		}
		if _, dup := index[stage.Name]; dup {
			return nil, fmt.Errorf("pipeline %s: duplicate stage name %s", name, stage.Name)
		}
		if stage.Name == failure.Name {
			return nil, fmt.Errorf("pipeline %s: stage %s collides with the failure handler", name, stage.Name)
		}
		index[stage.Name] = i
	}

	return &Pipeline{
		name:    name,
		stages:  stages,
		failure: failure,
		index:   index,
	}, nil
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// First returns the entry stage of the chain
func (p *Pipeline) First() StageDescriptor { return p.stages[0] }

// Descriptor resolves a stage by name, including the failure handler
func (p *Pipeline) Descriptor(stage string) (StageDescriptor, bool) {
	if stage == p.failure.Name {
		return p.failure, true
	}
	i, ok := p.index[stage]
	if !ok {
		return StageDescriptor{}, false
	}
	return p.stages[i], true
}

// Next returns the stage following the given one, or false when the given
// stage is the last of the chain or the failure handler.
func (p *Pipeline) Next(stage string) (StageDescriptor, bool) {
	i, ok := p.index[stage]
	if !ok || i == len(p.stages)-1 {
		return StageDescriptor{}, false
	}
	return p.stages[i+1], true
}

// IsFailureStage reports whether the named stage is the failure handler
func (p *Pipeline) IsFailureStage(stage string) bool {
	return stage == p.failure.Name
}

// Run starts the pipeline for a job by enqueueing the first stage. If the
// enqueue fails the job stays pending and the error is returned to the
// caller; nothing has been scheduled.
func (p *Pipeline) Run(ctx context.Context, q Queue, jobID string, payload json.RawMessage) error {
	msg := &Message{
		ID:           uuid.NewString(),
		JobID:        jobID,
		Stage:        p.stages[0].Name,
		Payload:      payload,
		FailureStage: p.failure.Name,
	}
	if _, err := q.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue first stage for job %s: %w", jobID, err)
	}
	return nil
}

// Continuation builds the message for the stage following prev, threading
// the stage output into the next stage's input. Returns nil when prev was
// the last stage of the chain.
func (p *Pipeline) Continuation(prev *Message, output json.RawMessage) *Message {
	next, ok := p.Next(prev.Stage)
	if !ok {
		return nil
	}
	return &Message{
		ID:           uuid.NewString(),
		JobID:        prev.JobID,
		Stage:        next.Name,
		Payload:      output,
		FailureStage: prev.FailureStage,
	}
}
