package order

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/consumed"
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// Queues owned by the order service. Both are plain durable queues; a
// rejected message is dropped, matching the absence of a retry topology here.
const (
	QueueInventoryResult = "q.order.inventory-result"
	QueuePaymentResult   = "q.order.payment-result"

	// Wildcard bindings on the events exchange. A single-token wildcard
	// matches inventory.reserved/failed/released but not
	// inventory.release.requested, which belongs to the inventory service.
	BindingInventoryResult = "inventory.*"
	BindingPaymentResult   = "payment.*"

	consumerInventoryResult = "order.inventory-result"
	consumerPaymentResult   = "order.payment-result"
)

// Consumers applies inventory and payment result events to the saga.
type Consumers struct {
	db     *dbpkg.Client
	saga   *Saga
	ledger *consumed.Ledger
	logg   *logger.Logger
}

type ConsumersParams struct {
	DB     *dbpkg.Client
	Saga   *Saga
	Ledger *consumed.Ledger
	Logg   *logger.Logger
}

func NewConsumers(params ConsumersParams) (*Consumers, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Saga == nil {
		return nil, fmt.Errorf("saga is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("consumed ledger is required")
	}
	if params.Logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Consumers{
		db:     params.DB,
		saga:   params.Saga,
		ledger: params.Ledger,
		logg:   params.Logg,
	}, nil
}

func (c *Consumers) Specs() []eventbus.ConsumerSpec {
	return []eventbus.ConsumerSpec{
		{Queue: QueueInventoryResult, Name: consumerInventoryResult, Handler: c.HandleInventoryResult},
		{Queue: QueuePaymentResult, Name: consumerPaymentResult, Handler: c.HandlePaymentResult},
	}
}

// HandleInventoryResult processes InventoryReserved, InventoryFailed, and
// InventoryReleased. Released carries no state change; it is consumed so the
// ledger records the compensation signal.
func (c *Consumers) HandleInventoryResult(ctx context.Context, d eventbus.Delivery) error {
	env, payload, err := events.Decode(d.Body)
	if err != nil {
		return eventbus.NewNonRetryableError(fmt.Errorf("invalid inventory result payload: %w", err))
	}

	ctx = c.logg.WithTraceID(ctx, env.TraceID.String())
	ctx = c.logg.WithConsumer(ctx, consumerInventoryResult)
	messageID := consumed.ResolveMessageID(d.MessageID, env.EventID)

	return c.db.WithTx(ctx, func(tx *gorm.DB) error {
		seen, err := c.ledger.IsConsumed(tx, messageID, consumerInventoryResult)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		switch data := payload.(type) {
		case *events.InventoryReservedData:
			if err := c.saga.MarkReserved(ctx, tx, data.OrderID); err != nil {
				return err
			}
		case *events.InventoryFailedData:
			if err := c.saga.MarkInventoryFailed(ctx, tx, data.OrderID, data.Reason); err != nil {
				return err
			}
		case *events.InventoryReleasedData:
			c.logg.Info(c.logg.WithOrderID(ctx, data.OrderID.String()), "inventory release recorded")
		default:
			return eventbus.NewNonRetryableError(fmt.Errorf("unsupported inventory event type %s", env.EventType))
		}

		return c.ledger.MarkConsumed(tx, messageID, consumerInventoryResult)
	})
}

// HandlePaymentResult processes PaymentSucceeded and PaymentFailed.
func (c *Consumers) HandlePaymentResult(ctx context.Context, d eventbus.Delivery) error {
	env, payload, err := events.Decode(d.Body)
	if err != nil {
		return eventbus.NewNonRetryableError(fmt.Errorf("invalid payment result payload: %w", err))
	}

	ctx = c.logg.WithTraceID(ctx, env.TraceID.String())
	ctx = c.logg.WithConsumer(ctx, consumerPaymentResult)
	messageID := consumed.ResolveMessageID(d.MessageID, env.EventID)

	return c.db.WithTx(ctx, func(tx *gorm.DB) error {
		seen, err := c.ledger.IsConsumed(tx, messageID, consumerPaymentResult)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		switch data := payload.(type) {
		case *events.PaymentSucceededData:
			if err := c.saga.MarkPaymentSucceeded(ctx, tx, data.OrderID); err != nil {
				return err
			}
		case *events.PaymentFailedData:
			if err := c.saga.MarkPaymentFailed(ctx, tx, data.OrderID, data.Reason, env.TraceID, env.Identity); err != nil {
				return err
			}
		default:
			return eventbus.NewNonRetryableError(fmt.Errorf("unsupported payment event type %s", env.EventType))
		}

		return c.ledger.MarkConsumed(tx, messageID, consumerPaymentResult)
	})
}
