package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/pkg/enums"
)

// PaymentRecord stores the single payment decision taken for an order.
type PaymentRecord struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payment_records_order"`
	Status    enums.PaymentStatus `gorm:"column:status;not null"`
	Reason    *string             `gorm:"column:reason"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}
