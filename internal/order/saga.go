package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/outbox"
)

// Saga applies inbound result events to the order state machine. Guards are
// status predicates baked into the UPDATE, so late or out-of-order events
// degrade to no-ops instead of reverting a terminal state.
type Saga struct {
	repo   Repository
	outbox *outbox.Service
	logg   *logger.Logger
}

func NewSaga(repo Repository, outboxSvc *outbox.Service, logg *logger.Logger) (*Saga, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Saga{repo: repo, outbox: outboxSvc, logg: logg}, nil
}

// MarkReserved moves NEW to RESERVED. Any other current status means a later
// event already won.
func (s *Saga) MarkReserved(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	changed, err := s.repo.WithTx(tx).TransitionStatus(ctx, orderID, enums.OrderStatusReserved, nil,
		enums.OrderStatusNew)
	if err != nil {
		return err
	}
	if !changed {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "reserved event ignored by status guard")
	}
	return nil
}

// MarkInventoryFailed fails the order unless payment already confirmed it.
func (s *Saga) MarkInventoryFailed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) error {
	changed, err := s.repo.WithTx(tx).TransitionStatus(ctx, orderID, enums.OrderStatusFailed, &reason,
		enums.OrderStatusNew, enums.OrderStatusReserved, enums.OrderStatusFailed)
	if err != nil {
		return err
	}
	if !changed {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "inventory failure ignored, order already confirmed")
	}
	return nil
}

// MarkPaymentSucceeded confirms the order unless it already failed.
func (s *Saga) MarkPaymentSucceeded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	changed, err := s.repo.WithTx(tx).TransitionStatus(ctx, orderID, enums.OrderStatusConfirmed, nil,
		enums.OrderStatusNew, enums.OrderStatusReserved, enums.OrderStatusConfirmed)
	if err != nil {
		return err
	}
	if !changed {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "payment success ignored, order already failed")
	}
	return nil
}

// MarkPaymentFailed fails a non-terminal order and stages the compensating
// InventoryReleaseRequested event in the same transaction.
func (s *Saga) MarkPaymentFailed(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, traceID uuid.UUID, identity *events.Identity) error {
	changed, err := s.repo.WithTx(tx).TransitionStatus(ctx, orderID, enums.OrderStatusFailed, &reason,
		enums.OrderStatusNew, enums.OrderStatusReserved)
	if err != nil {
		return err
	}
	if !changed {
		s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), "payment failure ignored, order already terminal")
		return nil
	}

	env, err := events.New(events.TypeInventoryReleaseRequested, events.InventoryReleaseRequestedData{
		OrderID: orderID,
		Reason:  "PAYMENT_FAILED",
	}, traceID, identity)
	if err != nil {
		return err
	}
	return s.outbox.Enqueue(ctx, tx, env)
}
