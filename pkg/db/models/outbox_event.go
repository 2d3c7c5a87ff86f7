package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/pkg/enums"
)

// OutboxEvent is a domain event staged for publication. The row id doubles as
// the broker message id so consumers can deduplicate redeliveries.
type OutboxEvent struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	EventType  string             `gorm:"column:event_type;not null"`
	RoutingKey string             `gorm:"column:routing_key;not null"`
	Payload    json.RawMessage    `gorm:"column:payload;type:jsonb;not null"`
	Status     enums.OutboxStatus `gorm:"column:status;not null;default:PENDING;index"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	SentAt     *time.Time         `gorm:"column:sent_at"`
	LastError  *string            `gorm:"column:last_error"`
}
