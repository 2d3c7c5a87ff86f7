package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/pkg/enums"
)

// IdempotencyKey maps a client-supplied key to the order it produced.
type IdempotencyKey struct {
	Key       string                  `gorm:"column:key;primaryKey"`
	OrderID   uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Status    enums.IdempotencyStatus `gorm:"column:status;not null"`
	ExpiresAt time.Time               `gorm:"column:expires_at;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}
