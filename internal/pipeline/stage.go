package pipeline

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
)

// DefaultMaxAttempts is the per-stage retry budget applied when a stage
// descriptor does not declare one.
const DefaultMaxAttempts = 3

// ExecContext carries the per-execution state a handler may need beyond its
// payload. Tx is non-nil only for stages that declared NeedsScope; it is the
// exclusive transaction of this single invocation. FailedStage and
// FailureReason are set only when the message was routed to the failure
// handler.
type ExecContext struct {
	JobID         string
	Stage         string
	Attempt       int
	FailedStage   string
	FailureReason string
	Tx            *gorm.DB
}

// Handler executes one stage. The payload is the previous stage's output;
// the returned payload becomes the next stage's input.
type Handler func(ctx context.Context, ec *ExecContext, payload json.RawMessage) (json.RawMessage, error)

// StageDescriptor statically declares one pipeline stage: its handler,
// whether it needs a transactional resource scope, and its retry budget.
// Descriptors are resolved once at pipeline construction, not at dispatch.
type StageDescriptor struct {
	Name        string
	Handler     Handler
	NeedsScope  bool
	MaxAttempts int
}
