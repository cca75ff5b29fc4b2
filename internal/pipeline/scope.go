package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// ScopeRunner executes stage handlers, wrapping the ones that declared
// NeedsScope in one exclusive transaction per invocation. The transaction is
// committed when the handler returns nil, rolled back when it returns an
// error or panics, and released on every exit path. Two invocations never
// share a transaction, so a retried stage always starts from a clean state.
type ScopeRunner struct {
	db *gorm.DB
}

// NewScopeRunner creates a scope runner over the given database handle
func NewScopeRunner(db *gorm.DB) *ScopeRunner {
	return &ScopeRunner{db: db}
}

// Execute runs the stage handler for one message delivery. Handler panics
// are recovered and surfaced as errors so a worker slot survives them.
func (s *ScopeRunner) Execute(ctx context.Context, stage StageDescriptor, ec *ExecContext, payload json.RawMessage) (json.RawMessage, error) {
	if !stage.NeedsScope {
		return s.run(ctx, stage, ec, payload)
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, NewTransportError("open resource scope", tx.Error)
	}

	ec.Tx = tx
	out, err := s.run(ctx, stage, ec, payload)
	ec.Tx = nil

	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if cerr := tx.Commit().Error; cerr != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to commit resource scope for stage %s: %w", stage.Name, cerr)
	}
	return out, nil
}

// run invokes the handler with panic recovery
func (s *ScopeRunner) run(ctx context.Context, stage StageDescriptor, ec *ExecContext, payload json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("stage %s panicked: %v", stage.Name, r)
		}
	}()
	return stage.Handler(ctx, ec, payload)
}
