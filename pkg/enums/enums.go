package enums

// OrderStatus tracks an order through the fulfillment flow.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusReserved  OrderStatus = "RESERVED"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusReserved, OrderStatusConfirmed, OrderStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusConfirmed || s == OrderStatusFailed
}

// ReservationStatus tracks the lifecycle of an inventory reservation.
type ReservationStatus string

const (
	ReservationStatusReserved ReservationStatus = "RESERVED"
	ReservationStatusReleased ReservationStatus = "RELEASED"
	ReservationStatusFailed   ReservationStatus = "FAILED"
)

func (s ReservationStatus) IsValid() bool {
	switch s {
	case ReservationStatusReserved, ReservationStatusReleased, ReservationStatusFailed:
		return true
	}
	return false
}

// PaymentStatus records the outcome of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// OutboxStatus marks whether an outbox row has been handed to the broker.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
)

// IdempotencyStatus marks the state of a stored idempotency key.
type IdempotencyStatus string

const (
	IdempotencyStatusCompleted IdempotencyStatus = "COMPLETED"
)
