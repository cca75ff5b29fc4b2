package pipeline

import (
	"context"
	"encoding/json"
	"time"
)

// Message is the unit of work exchanged through the queue. Payload is the
// data produced by the previous stage; the remaining fields are side-channel
// metadata that travel with the message but are not part of the data flow.
type Message struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id"`
	Stage        string          `json:"stage"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Attempt      int             `json:"attempt"`
	FailureStage string          `json:"failure_stage"`
	FailedStage  string          `json:"failed_stage,omitempty"`
	Error        string          `json:"error,omitempty"`

	// Receipt is the transport's lease handle for this delivery. It is
	// only meaningful between Dequeue and Ack/Requeue/RouteToFailure.
	Receipt interface{} `json:"-"`
}

// Queue is the durable mailbox the pipeline runs on. Delivery is
// at-least-once: a leased message that is not acknowledged within its lease
// timeout becomes deliverable again. Messages enqueued by the same stage for
// the same job are delivered in enqueue order; no ordering is guaranteed
// across jobs.
type Queue interface {
	// Enqueue stores a message and returns its id. Callers must not assume
	// the message reached durable storage unless Enqueue returns nil.
	Enqueue(ctx context.Context, msg *Message) (string, error)

	// Dequeue leases the next deliverable message, or returns (nil, nil)
	// when the queue is empty. The returned message's Attempt field counts
	// this delivery.
	Dequeue(ctx context.Context) (*Message, error)

	// Ack discards a leased message after successful processing.
	Ack(ctx context.Context, msg *Message) error

	// Requeue releases a leased message for redelivery after the delay,
	// preserving its attempt count.
	Requeue(ctx context.Context, msg *Message, delay time.Duration) error

	// RouteToFailure redirects a leased message to its failure stage,
	// recording the causing error.
	RouteToFailure(ctx context.Context, msg *Message, cause error) error
}
