package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/pkg/enums"
)

// InventoryReservation is the per-order record of a reserve attempt. One row
// per order; replays short-circuit on it.
type InventoryReservation struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_inventory_reservations_order"`
	Status    enums.ReservationStatus    `gorm:"column:status;not null"`
	Reason    *string                    `gorm:"column:reason"`
	Items     []InventoryReservationItem `gorm:"foreignKey:ReservationID"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

// InventoryReservationItem is one reserved SKU line.
type InventoryReservationItem struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ReservationID uuid.UUID `gorm:"column:reservation_id;type:uuid;not null;index"`
	SkuID         string    `gorm:"column:sku_id;not null"`
	Quantity      int       `gorm:"column:quantity;not null"`
}
