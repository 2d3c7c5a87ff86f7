package models

import "time"

// SkuStock tracks available and reserved quantities per SKU.
type SkuStock struct {
	SkuID        string    `gorm:"column:sku_id;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
