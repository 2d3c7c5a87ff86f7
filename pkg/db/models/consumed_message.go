package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsumedMessage records a (message, consumer) pair that has been fully
// processed, committed in the same transaction as the handler's mutations.
type ConsumedMessage struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	MessageID   string    `gorm:"column:message_id;not null;uniqueIndex:ux_consumed_messages_message_consumer"`
	Consumer    string    `gorm:"column:consumer;not null;uniqueIndex:ux_consumed_messages_message_consumer"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime"`
}
