package eventbus

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryQueueSpec describes one consuming queue with the TTL-retry and DLQ
// chain around it:
//
//	main queue  --reject-->  retry exchange --> retry queue (TTL)
//	retry queue --expire-->  events exchange (original routing key)
//	consumer    --exhaust--> dlq exchange   --> dlq queue
type RetryQueueSpec struct {
	Queue      string
	RoutingKey string

	RetryExchange string
	RetryQueue    string
	RetryTTL      time.Duration

	DLQExchange string
	DLQQueue    string
}

// DLQRoutingKey is the direct-exchange key used when parking a message.
func (s RetryQueueSpec) DLQRoutingKey() string {
	return s.DLQQueue
}

// DeclareRetryTopology declares the full queue chain for one consumer.
func (c *Client) DeclareRetryTopology(spec RetryQueueSpec) error {
	ch := c.pubChan

	if err := c.declareExchange(spec.RetryExchange, "direct"); err != nil {
		return err
	}
	if err := c.declareExchange(spec.DLQExchange, "direct"); err != nil {
		return err
	}

	mainArgs := amqp.Table{
		"x-dead-letter-exchange":    spec.RetryExchange,
		"x-dead-letter-routing-key": spec.RetryQueue,
	}
	if _, err := ch.QueueDeclare(spec.Queue, true, false, false, false, mainArgs); err != nil {
		return fmt.Errorf("declare queue %s: %w", spec.Queue, err)
	}
	if err := ch.QueueBind(spec.Queue, spec.RoutingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", spec.Queue, err)
	}

	retryArgs := amqp.Table{
		"x-message-ttl":             spec.RetryTTL.Milliseconds(),
		"x-dead-letter-exchange":    c.exchange,
		"x-dead-letter-routing-key": spec.RoutingKey,
	}
	if _, err := ch.QueueDeclare(spec.RetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("declare retry queue %s: %w", spec.RetryQueue, err)
	}
	if err := ch.QueueBind(spec.RetryQueue, spec.RetryQueue, spec.RetryExchange, false, nil); err != nil {
		return fmt.Errorf("bind retry queue %s: %w", spec.RetryQueue, err)
	}

	if _, err := ch.QueueDeclare(spec.DLQQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq queue %s: %w", spec.DLQQueue, err)
	}
	if err := ch.QueueBind(spec.DLQQueue, spec.DLQRoutingKey(), spec.DLQExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlq queue %s: %w", spec.DLQQueue, err)
	}

	return nil
}

// DeclareQueue declares a plain durable queue bound to the events exchange.
// Failed deliveries are nacked back for broker redelivery.
func (c *Client) DeclareQueue(queue string, routingKeys ...string) error {
	if _, err := c.pubChan.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	for _, key := range routingKeys {
		if err := c.pubChan.QueueBind(queue, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", queue, key, err)
		}
	}
	return nil
}
