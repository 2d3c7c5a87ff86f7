package eventbus

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Delivery is the handler-facing view of one broker message.
type Delivery struct {
	MessageID  string
	Body       []byte
	Headers    amqp.Table
	RetryCount int64
}

// Handler processes one delivery. Returning nil acks the message; a
// NonRetryableError parks it on the DLQ immediately; any other error goes
// through the retry chain.
type Handler func(ctx context.Context, d Delivery) error

// NonRetryableError marks failures that redelivery cannot fix.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable failure"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// ConsumerSpec wires a queue to its handler. Retry is nil for plain queues
// that rely on broker redelivery.
type ConsumerSpec struct {
	Queue   string
	Name    string
	Handler Handler
	Retry   *RetryPolicy
}

// RetryPolicy caps TTL-loop retries before a message is parked.
type RetryPolicy struct {
	MaxRetries    int64
	DLQExchange   string
	DLQRoutingKey string
}

// Consume starts a goroutine draining the queue until ctx is canceled or the
// channel closes. Setup failures are returned synchronously.
func (c *Client) Consume(ctx context.Context, spec ConsumerSpec) error {
	if spec.Handler == nil {
		return errors.New("consumer handler is required")
	}

	ch, err := c.consumerChannel()
	if err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx, spec.Queue, spec.Name, false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume %s: %w", spec.Queue, err)
	}

	go func() {
		defer ch.Close()
		for d := range deliveries {
			c.handleDelivery(ctx, spec, d)
		}
		if c.logg != nil {
			logCtx := c.logg.WithField(ctx, "queue", spec.Queue)
			c.logg.Warn(logCtx, "delivery channel closed, consumer stopping")
		}
	}()

	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"queue": spec.Queue, "consumer": spec.Name})
		c.logg.Info(logCtx, "consumer started")
	}
	return nil
}

func (c *Client) handleDelivery(ctx context.Context, spec ConsumerSpec, d amqp.Delivery) {
	retryCount := deathCount(d.Headers, spec.Queue)

	err := spec.Handler(ctx, Delivery{
		MessageID:  d.MessageId,
		Body:       d.Body,
		Headers:    d.Headers,
		RetryCount: retryCount,
	})
	if err == nil {
		_ = d.Ack(false)
		return
	}

	logCtx := ctx
	if c.logg != nil {
		logCtx = c.logg.WithFields(ctx, map[string]any{
			"queue":       spec.Queue,
			"consumer":    spec.Name,
			"message_id":  d.MessageId,
			"retry_count": retryCount,
		})
	}

	var nonRetry NonRetryableError
	permanent := errors.As(err, &nonRetry)

	if spec.Retry == nil {
		if permanent {
			if c.logg != nil {
				c.logg.Error(logCtx, "message rejected permanently", err)
			}
			_ = d.Nack(false, false)
			return
		}
		if c.logg != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "message processing failed, requeueing")
		}
		_ = d.Nack(false, true)
		return
	}

	if permanent {
		c.parkOnDLQ(ctx, spec, d, err.Error())
		return
	}

	if retryCount >= spec.Retry.MaxRetries {
		c.parkOnDLQ(ctx, spec, d, "RETRY_EXHAUSTED:"+shortError(err))
		return
	}

	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "message processing failed, scheduling retry")
	}
	_ = d.Nack(false, false)
}

// parkOnDLQ republishes the original body on the DLQ exchange and acks the
// delivery so the retry loop ends.
func (c *Client) parkOnDLQ(ctx context.Context, spec ConsumerSpec, d amqp.Delivery, reason string) {
	headers := amqp.Table{"x-dlq-reason": reason}
	for _, key := range []string{"x-trace-id", "x-event-type"} {
		if v, ok := d.Headers[key]; ok {
			headers[key] = v
		}
	}

	err := c.Publish(ctx, spec.Retry.DLQExchange, spec.Retry.DLQRoutingKey, d.MessageId, headers, d.Body)
	if err != nil {
		if c.logg != nil {
			c.logg.Error(c.logg.WithField(ctx, "queue", spec.Queue), "failed to park message on dlq", err)
		}
		// Keep the message in the retry loop rather than losing it.
		_ = d.Nack(false, false)
		return
	}

	if c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"queue":      spec.Queue,
			"message_id": d.MessageId,
			"dlq_reason": reason,
		})
		c.logg.Warn(logCtx, "message parked on dlq")
	}
	_ = d.Ack(false)
}

// deathCount reads how many times the main queue already rejected this
// message from the x-death header.
func deathCount(headers amqp.Table, queue string) int64 {
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}
	entries, ok := raw.([]any)
	if !ok {
		return 0
	}
	for _, entry := range entries {
		table, ok := entry.(amqp.Table)
		if !ok {
			continue
		}
		if name, _ := table["queue"].(string); name != queue {
			continue
		}
		switch count := table["count"].(type) {
		case int64:
			return count
		case int32:
			return int64(count)
		case int:
			return int64(count)
		}
	}
	return 0
}

func shortError(err error) string {
	msg := err.Error()
	if len(msg) > 300 {
		return msg[:300]
	}
	return msg
}
