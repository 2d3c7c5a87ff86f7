package events

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event type names as they appear in envelope event_type.
const (
	TypeOrderCreated              = "OrderCreated"
	TypeInventoryReserved         = "InventoryReserved"
	TypeInventoryFailed           = "InventoryFailed"
	TypeInventoryReleaseRequested = "InventoryReleaseRequested"
	TypeInventoryReleased         = "InventoryReleased"
	TypePaymentSucceeded          = "PaymentSucceeded"
	TypePaymentFailed             = "PaymentFailed"
)

// Routing keys on the events exchange, one per event type.
const (
	RoutingKeyOrderCreated              = "order.created"
	RoutingKeyInventoryReserved         = "inventory.reserved"
	RoutingKeyInventoryFailed           = "inventory.failed"
	RoutingKeyInventoryReleaseRequested = "inventory.release.requested"
	RoutingKeyInventoryReleased         = "inventory.released"
	RoutingKeyPaymentSucceeded          = "payment.succeeded"
	RoutingKeyPaymentFailed             = "payment.failed"
)

var routingKeysByType = map[string]string{
	TypeOrderCreated:              RoutingKeyOrderCreated,
	TypeInventoryReserved:         RoutingKeyInventoryReserved,
	TypeInventoryFailed:           RoutingKeyInventoryFailed,
	TypeInventoryReleaseRequested: RoutingKeyInventoryReleaseRequested,
	TypeInventoryReleased:         RoutingKeyInventoryReleased,
	TypePaymentSucceeded:          RoutingKeyPaymentSucceeded,
	TypePaymentFailed:             RoutingKeyPaymentFailed,
}

// RoutingKeyFor maps an event type to its routing key. Unknown types return
// an empty string.
func RoutingKeyFor(eventType string) string {
	return routingKeysByType[eventType]
}

// OrderLine is one SKU line inside OrderCreated.
type OrderLine struct {
	SkuID    string          `json:"sku_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderCreatedData struct {
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      string          `json:"user_id"`
	Items       []OrderLine     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ReservedItem is one SKU line inside InventoryReserved/InventoryReleased.
type ReservedItem struct {
	SkuID    string `json:"sku_id"`
	Quantity int    `json:"quantity"`
}

type InventoryReservedData struct {
	OrderID       uuid.UUID      `json:"order_id"`
	ReservationID uuid.UUID      `json:"reservation_id"`
	ReservedItems []ReservedItem `json:"reserved_items,omitempty"`
}

type InventoryFailedData struct {
	OrderID       uuid.UUID `json:"order_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	Reason        string    `json:"reason"`
}

type InventoryReleaseRequestedData struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

type InventoryReleasedData struct {
	ReleaseID     uuid.UUID      `json:"release_id"`
	OrderID       uuid.UUID      `json:"order_id"`
	ReservationID uuid.UUID      `json:"reservation_id"`
	Reason        string         `json:"reason"`
	ReleasedItems []ReservedItem `json:"released_items,omitempty"`
}

type PaymentSucceededData struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
}

type PaymentFailedData struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}
