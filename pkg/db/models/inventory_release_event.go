package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryReleaseEvent is the audit record appended when reserved stock is
// returned to the pool.
type InventoryReleaseEvent struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null"`
	Reason        string    `gorm:"column:reason;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index"`
}
