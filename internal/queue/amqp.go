package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/pipeline"
)

// AMQPQueue runs the pipeline on a RabbitMQ broker. A delivery left unacked
// is redelivered when the consuming channel closes, which is the broker's
// form of lease expiry. Delayed redelivery goes through a companion retry
// queue whose expired messages dead-letter back into the work queue.
type AMQPQueue struct {
	ch         *amqp.Channel
	name       string
	retryQueue string
}

// NewAMQPQueue declares the work queue and its retry companion on a fresh
// channel of the given connection
func NewAMQPQueue(conn *amqp.Connection, cfg config.QueueConfig) (*AMQPQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", cfg.QueueName, err)
	}

	retryQueue := cfg.QueueName + ".retry"
	retryArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.QueueName,
	}
	if _, err := ch.QueueDeclare(retryQueue, true, false, false, false, retryArgs); err != nil {
		return nil, fmt.Errorf("failed to declare retry queue %s: %w", retryQueue, err)
	}

	return &AMQPQueue{
		ch:         ch,
		name:       cfg.QueueName,
		retryQueue: retryQueue,
	}, nil
}

// Enqueue publishes the message to the work queue
func (q *AMQPQueue) Enqueue(ctx context.Context, msg *pipeline.Message) (string, error) {
	if err := q.publish(ctx, q.name, msg, 0); err != nil {
		return "", pipeline.NewTransportError("enqueue", err)
	}
	return msg.ID, nil
}

// Dequeue pulls one delivery from the work queue without auto-ack. Returns
// (nil, nil) when the queue is empty.
func (q *AMQPQueue) Dequeue(ctx context.Context) (*pipeline.Message, error) {
	delivery, ok, err := q.ch.Get(q.name, false)
	if err != nil {
		return nil, pipeline.NewTransportError("dequeue", err)
	}
	if !ok {
		return nil, nil
	}

	var msg pipeline.Message
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		// A poisoned body can never be processed; drop it.
		_ = delivery.Nack(false, false)
		return nil, fmt.Errorf("failed to decode message body: %w", err)
	}
	msg.Attempt++
	msg.Receipt = delivery
	return &msg, nil
}

// Ack acknowledges the delivery so the broker discards it
func (q *AMQPQueue) Ack(_ context.Context, msg *pipeline.Message) error {
	delivery, err := q.receipt(msg)
	if err != nil {
		return err
	}
	if err := delivery.Ack(false); err != nil {
		return pipeline.NewTransportError("ack", err)
	}
	return nil
}

// Requeue republishes the message with its attempt count preserved and acks
// the original delivery. A positive delay goes through the retry queue and
// dead-letters back when its per-message TTL expires.
func (q *AMQPQueue) Requeue(ctx context.Context, msg *pipeline.Message, delay time.Duration) error {
	delivery, err := q.receipt(msg)
	if err != nil {
		return err
	}

	target := q.name
	if delay > 0 {
		target = q.retryQueue
	}
	if err := q.publish(ctx, target, msg, delay); err != nil {
		return pipeline.NewTransportError("requeue", err)
	}
	if err := delivery.Ack(false); err != nil {
		return pipeline.NewTransportError("requeue ack", err)
	}
	return nil
}

// RouteToFailure republishes the message targeted at its failure stage and
// acks the original delivery
func (q *AMQPQueue) RouteToFailure(ctx context.Context, msg *pipeline.Message, cause error) error {
	delivery, err := q.receipt(msg)
	if err != nil {
		return err
	}
	if msg.FailureStage == "" {
		return fmt.Errorf("message %s has no failure stage", msg.ID)
	}

	failure := &pipeline.Message{
		ID:           msg.ID,
		JobID:        msg.JobID,
		Stage:        msg.FailureStage,
		Payload:      msg.Payload,
		FailureStage: msg.FailureStage,
		FailedStage:  msg.Stage,
		Error:        cause.Error(),
	}
	if err := q.publish(ctx, q.name, failure, 0); err != nil {
		return pipeline.NewTransportError("route to failure", err)
	}
	if err := delivery.Ack(false); err != nil {
		return pipeline.NewTransportError("route to failure ack", err)
	}
	return nil
}

// Close releases the channel
func (q *AMQPQueue) Close() error {
	return q.ch.Close()
}

func (q *AMQPQueue) publish(ctx context.Context, target string, msg *pipeline.Message, ttl time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Body:         body,
	}
	if ttl > 0 {
		publishing.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}
	return q.ch.PublishWithContext(ctx, "", target, false, false, publishing)
}

func (q *AMQPQueue) receipt(msg *pipeline.Message) (amqp.Delivery, error) {
	delivery, ok := msg.Receipt.(amqp.Delivery)
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("message %s has no broker lease receipt", msg.ID)
	}
	return delivery, nil
}
