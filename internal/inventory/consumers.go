package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/consumed"
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/outbox"
)

// Queue and exchange names owned by the inventory service.
const (
	QueueOrderCreated          = "q.inventory.order-created"
	QueueOrderCreatedRetry     = "q.inventory.order-created.retry"
	QueueOrderCreatedDLQ       = "q.inventory.order-created.dlq"
	QueueReleaseRequested      = "q.inventory.release-requested"
	QueueReleaseRequestedRetry = "q.inventory.release-requested.retry"
	QueueReleaseRequestedDLQ   = "q.inventory.release-requested.dlq"

	RetryExchange = "inventory.retry.exchange"
	DLQExchange   = "inventory.dlq.exchange"

	consumerOrderCreated     = "inventory.order-created"
	consumerReleaseRequested = "inventory.release-requested"
)

// Topology describes the retry/DLQ wiring for both inventory queues.
func Topology(cfg config.MessagingConfig) []eventbus.RetryQueueSpec {
	return []eventbus.RetryQueueSpec{
		{
			Queue:         QueueOrderCreated,
			RoutingKey:    events.RoutingKeyOrderCreated,
			RetryExchange: RetryExchange,
			RetryQueue:    QueueOrderCreatedRetry,
			RetryTTL:      cfg.RetryTTL,
			DLQExchange:   DLQExchange,
			DLQQueue:      QueueOrderCreatedDLQ,
		},
		{
			Queue:         QueueReleaseRequested,
			RoutingKey:    events.RoutingKeyInventoryReleaseRequested,
			RetryExchange: RetryExchange,
			RetryQueue:    QueueReleaseRequestedRetry,
			RetryTTL:      cfg.RetryTTL,
			DLQExchange:   DLQExchange,
			DLQQueue:      QueueReleaseRequestedDLQ,
		},
	}
}

// Consumers processes order.created and inventory.release.requested
// deliveries. Each handler commits the reservation mutation, the outgoing
// result event, and the dedup ledger row in one transaction.
type Consumers struct {
	db     *dbpkg.Client
	svc    *Service
	outbox *outbox.Service
	ledger *consumed.Ledger
	logg   *logger.Logger
}

type ConsumersParams struct {
	DB     *dbpkg.Client
	Svc    *Service
	Outbox *outbox.Service
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
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
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
		outbox: params.Outbox,
		ledger: params.Ledger,
		logg:   params.Logg,
	}, nil
}

// Specs returns the consumer wiring for Start against an eventbus client.
func (c *Consumers) Specs(cfg config.MessagingConfig) []eventbus.ConsumerSpec {
	return []eventbus.ConsumerSpec{
		{
			Queue:   QueueOrderCreated,
			Name:    consumerOrderCreated,
			Handler: c.HandleOrderCreated,
			Retry: &eventbus.RetryPolicy{
				MaxRetries:    int64(cfg.MaxRetries),
				DLQExchange:   DLQExchange,
				DLQRoutingKey: QueueOrderCreatedDLQ,
			},
		},
		{
			Queue:   QueueReleaseRequested,
			Name:    consumerReleaseRequested,
			Handler: c.HandleReleaseRequested,
			Retry: &eventbus.RetryPolicy{
				MaxRetries:    int64(cfg.MaxRetries),
				DLQExchange:   DLQExchange,
				DLQRoutingKey: QueueReleaseRequestedDLQ,
			},
		},
	}
}

// HandleOrderCreated reserves stock for a new order and stages the
// InventoryReserved or InventoryFailed result on the outbox.
func (c *Consumers) HandleOrderCreated(ctx context.Context, d eventbus.Delivery) error {
	env, payload, err := events.Decode(d.Body)
	if err != nil {
		return fmt.Errorf("invalid order.created payload: %w", err)
	}
	data, ok := payload.(*events.OrderCreatedData)
	if !ok {
		return fmt.Errorf("unexpected event type %s on %s", env.EventType, QueueOrderCreated)
	}
	if data.OrderID == uuid.Nil {
		return fmt.Errorf("order_id is required")
	}

	ctx = c.logg.WithTraceID(ctx, env.TraceID.String())
	ctx = c.logg.WithConsumer(ctx, consumerOrderCreated)
	ctx = c.logg.WithOrderID(ctx, data.OrderID.String())

	messageID := consumed.ResolveMessageID(d.MessageID, env.EventID)

	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		seen, err := c.ledger.IsConsumed(tx, messageID, consumerOrderCreated)
		if err != nil {
			return err
		}
		if seen {
			c.logg.Info(ctx, "duplicate delivery skipped")
			return nil
		}

		items := make([]events.ReservedItem, 0, len(data.Items))
		for _, line := range data.Items {
			items = append(items, events.ReservedItem{SkuID: line.SkuID, Quantity: line.Quantity})
		}

		outcome, err := c.svc.ReserveTx(ctx, tx, data.OrderID, items)
		if err != nil {
			return err
		}

		resultEnv, err := reservationResultEnvelope(outcome, env)
		if err != nil {
			return err
		}
		if err := c.outbox.Enqueue(ctx, tx, resultEnv); err != nil {
			return err
		}

		return c.ledger.MarkConsumed(tx, messageID, consumerOrderCreated)
	})
	return classifyConsumerError(err)
}

// HandleReleaseRequested returns reserved stock to the pool and stages an
// InventoryReleased event when a reservation was actually undone.
func (c *Consumers) HandleReleaseRequested(ctx context.Context, d eventbus.Delivery) error {
	env, payload, err := events.Decode(d.Body)
	if err != nil {
		return fmt.Errorf("invalid inventory.release.requested payload: %w", err)
	}
	data, ok := payload.(*events.InventoryReleaseRequestedData)
	if !ok {
		return fmt.Errorf("unexpected event type %s on %s", env.EventType, QueueReleaseRequested)
	}
	if data.OrderID == uuid.Nil {
		return fmt.Errorf("order_id is required")
	}

	ctx = c.logg.WithTraceID(ctx, env.TraceID.String())
	ctx = c.logg.WithConsumer(ctx, consumerReleaseRequested)
	ctx = c.logg.WithOrderID(ctx, data.OrderID.String())

	messageID := consumed.ResolveMessageID(d.MessageID, env.EventID)

	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		seen, err := c.ledger.IsConsumed(tx, messageID, consumerReleaseRequested)
		if err != nil {
			return err
		}
		if seen {
			c.logg.Info(ctx, "duplicate delivery skipped")
			return nil
		}

		outcome, err := c.svc.ReleaseTx(ctx, tx, data.OrderID, data.Reason)
		if err != nil {
			return err
		}
		if outcome != nil {
			releasedEnv, err := events.New(events.TypeInventoryReleased, events.InventoryReleasedData{
				ReleaseID:     outcome.ReleaseID,
				OrderID:       outcome.OrderID,
				ReservationID: outcome.ReservationID,
				Reason:        outcome.Reason,
				ReleasedItems: outcome.Items,
			}, env.TraceID, env.Identity)
			if err != nil {
				return err
			}
			if err := c.outbox.Enqueue(ctx, tx, releasedEnv); err != nil {
				return err
			}
		} else {
			c.logg.Info(ctx, "no active reservation to release")
		}

		return c.ledger.MarkConsumed(tx, messageID, consumerReleaseRequested)
	})
	return classifyConsumerError(err)
}

func reservationResultEnvelope(outcome *ReservationOutcome, source events.Envelope) (events.Envelope, error) {
	if outcome.Status == enums.ReservationStatusReserved {
		return events.New(events.TypeInventoryReserved, events.InventoryReservedData{
			OrderID:       outcome.OrderID,
			ReservationID: outcome.ReservationID,
			ReservedItems: outcome.Items,
		}, source.TraceID, source.Identity)
	}
	return events.New(events.TypeInventoryFailed, events.InventoryFailedData{
		OrderID:       outcome.OrderID,
		ReservationID: outcome.ReservationID,
		Reason:        outcome.Reason,
	}, source.TraceID, source.Identity)
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
