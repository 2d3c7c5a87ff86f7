package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/consumed"
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// Queue and exchange names owned by the payment service.
const (
	QueueInventoryReserved      = "q.payment.inventory-reserved"
	QueueInventoryReservedRetry = "q.payment.inventory-reserved.retry"
	QueueInventoryReservedDLQ   = "q.payment.inventory-reserved.dlq"

	RetryExchange = "payment.retry.exchange"
	DLQExchange   = "payment.dlq.exchange"

	consumerInventoryReserved = "payment.inventory-reserved"
)

// Topology describes the retry/DLQ wiring for the inventory.reserved queue.
func Topology(cfg config.MessagingConfig) []eventbus.RetryQueueSpec {
	return []eventbus.RetryQueueSpec{
		{
			Queue:         QueueInventoryReserved,
			RoutingKey:    events.RoutingKeyInventoryReserved,
			RetryExchange: RetryExchange,
			RetryQueue:    QueueInventoryReservedRetry,
			RetryTTL:      cfg.RetryTTL,
			DLQExchange:   DLQExchange,
			DLQQueue:      QueueInventoryReservedDLQ,
		},
	}
}

// Publisher sends payment results straight to the events exchange. Unlike the
// order and inventory services there is no outbox here: the publish runs
// inside the handler transaction, so a broker failure rolls the decision back
// and the delivery retries as one unit.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, headers amqp.Table, body []byte) error
	Exchange() string
}

// Consumers processes inventory.reserved deliveries and answers each with a
// PaymentSucceeded or PaymentFailed event.
type Consumers struct {
	db     *dbpkg.Client
	svc    *Service
	bus    Publisher
	ledger *consumed.Ledger
	logg   *logger.Logger
}

type ConsumersParams struct {
	DB     *dbpkg.Client
	Svc    *Service
	Bus    Publisher
	Ledger *consumed.Ledger
	Logg   *logger.Logger
}

func NewConsumers(params ConsumersParams) (*Consumers, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if params.Bus == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("consumed ledger is required")
	}
	if params.Logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Consumers{
		db:     params.DB,
		svc:    params.Svc,
		bus:    params.Bus,
		ledger: params.Ledger,
		logg:   params.Logg,
	}, nil
}

// Specs returns the consumer wiring for Start against an eventbus client.
func (c *Consumers) Specs(cfg config.MessagingConfig) []eventbus.ConsumerSpec {
	return []eventbus.ConsumerSpec{
		{
			Queue:   QueueInventoryReserved,
			Name:    consumerInventoryReserved,
			Handler: c.HandleInventoryReserved,
			Retry: &eventbus.RetryPolicy{
				MaxRetries:    int64(cfg.MaxRetries),
				DLQExchange:   DLQExchange,
				DLQRoutingKey: QueueInventoryReservedDLQ,
			},
		},
	}
}

// HandleInventoryReserved charges the mock processor for a reserved order and
// publishes the outcome. Replays for an already-decided order republish the
// stored outcome instead of charging again.
func (c *Consumers) HandleInventoryReserved(ctx context.Context, d eventbus.Delivery) error {
	env, payload, err := events.Decode(d.Body)
	if err != nil {
		return fmt.Errorf("invalid inventory.reserved payload: %w", err)
	}
	data, ok := payload.(*events.InventoryReservedData)
	if !ok {
		return fmt.Errorf("unexpected event type %s on %s", env.EventType, QueueInventoryReserved)
	}
	if data.OrderID == uuid.Nil {
		return fmt.Errorf("order_id is required")
	}

	ctx = c.logg.WithTraceID(ctx, env.TraceID.String())
	ctx = c.logg.WithConsumer(ctx, consumerInventoryReserved)
	ctx = c.logg.WithOrderID(ctx, data.OrderID.String())

	messageID := consumed.ResolveMessageID(d.MessageID, env.EventID)

	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		seen, err := c.ledger.IsConsumed(tx, messageID, consumerInventoryReserved)
		if err != nil {
			return err
		}
		if seen {
			c.logg.Info(ctx, "duplicate delivery skipped")
			return nil
		}

		record, err := c.svc.DecideTx(ctx, tx, data.OrderID)
		if err != nil {
			return err
		}

		resultEnv, err := paymentResultEnvelope(record, env)
		if err != nil {
			return err
		}
		if err := c.publish(ctx, resultEnv); err != nil {
			return err
		}

		return c.ledger.MarkConsumed(tx, messageID, consumerInventoryReserved)
	})
	return classifyConsumerError(err)
}

func (c *Consumers) publish(ctx context.Context, env events.Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}
	headers := amqp.Table{
		"x-event-id":   env.EventID.String(),
		"x-event-type": env.EventType,
		"x-trace-id":   env.TraceID.String(),
	}
	return c.bus.Publish(ctx, c.bus.Exchange(), events.RoutingKeyFor(env.EventType), env.EventID.String(), headers, body)
}

func paymentResultEnvelope(record *models.PaymentRecord, source events.Envelope) (events.Envelope, error) {
	switch record.Status {
	case enums.PaymentStatusSucceeded:
		return events.New(events.TypePaymentSucceeded, events.PaymentSucceededData{
			OrderID:   record.OrderID,
			PaymentID: record.ID,
		}, source.TraceID, source.Identity)
	case enums.PaymentStatusFailed:
		reason := defaultFailureReason
		if record.Reason != nil {
			reason = *record.Reason
		}
		return events.New(events.TypePaymentFailed, events.PaymentFailedData{
			OrderID:   record.OrderID,
			PaymentID: record.ID,
			Reason:    reason,
		}, source.TraceID, source.Identity)
	default:
		return events.Envelope{}, errors.New(errors.CodeStateConflict, fmt.Sprintf("unsupported payment status %s", record.Status))
	}
}

// classifyConsumerError parks invariant violations immediately; redelivery
// cannot fix them. Everything else stays retryable, including malformed
// payloads, which exhaust the retry budget and land on the DLQ.
func classifyConsumerError(err error) error {
	if err == nil {
		return nil
	}
	if appErr := errors.As(err); appErr != nil {
		switch appErr.Code() {
		case errors.CodeStateConflict, errors.CodeInternal:
			return eventbus.NewNonRetryableError(err)
		}
	}
	return err
}
