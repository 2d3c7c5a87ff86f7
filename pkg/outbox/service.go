package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// Service stages envelopes for publication inside domain transactions.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Enqueue writes one PENDING outbox row in the caller's transaction and never
// publishes inline. The row id becomes the broker message id downstream.
func (s *Service) Enqueue(ctx context.Context, tx *gorm.DB, env events.Envelope) error {
	if tx == nil {
		return errors.New("transaction required")
	}

	routingKey := events.RoutingKeyFor(env.EventType)
	if routingKey == "" {
		return errors.New("no routing key for event type " + env.EventType)
	}

	payload, err := env.Marshal()
	if err != nil {
		return err
	}

	row := models.OutboxEvent{
		ID:         uuid.New(),
		EventType:  env.EventType,
		RoutingKey: routingKey,
		Payload:    payload,
		Status:     enums.OutboxStatusPending,
	}
	if err := s.repo.Insert(tx, &row); err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"outbox_id":   row.ID.String(),
			"event_id":    env.EventID.String(),
			"event_type":  env.EventType,
			"routing_key": routingKey,
			"trace_id":    env.TraceID.String(),
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}
