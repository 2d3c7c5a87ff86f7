package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FredZ6/cloud-project/pkg/enums"
)

// Order is the buyer-facing aggregate driven through the fulfillment flow.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID        string            `gorm:"column:user_id;not null"`
	Status        enums.OrderStatus `gorm:"column:status;not null"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null"`
	FailureReason *string           `gorm:"column:failure_reason"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is one SKU line on an order.
type OrderItem struct {
	ID       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID  uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	SkuID    string          `gorm:"column:sku_id;not null"`
	Quantity int             `gorm:"column:quantity;not null"`
	Price    decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
}
