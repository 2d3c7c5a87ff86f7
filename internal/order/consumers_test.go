package order

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/consumed"
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/outbox"
)

func newOrderTestConsumers(t *testing.T, conn *gorm.DB) *Consumers {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "order-test", Level: zerolog.Disabled, Output: io.Discard})
	saga, err := NewSaga(NewRepository(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	require.NoError(t, err)

	consumers, err := NewConsumers(ConsumersParams{
		DB:     dbpkg.NewWithConn(conn),
		Saga:   saga,
		Ledger: consumed.NewLedger(),
		Logg:   logg,
	})
	require.NoError(t, err)
	return consumers
}

func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:          uuid.New(),
		UserID:      "user-1",
		Status:      status,
		TotalAmount: decimal.RequireFromString("42.00"),
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func orderStatus(t *testing.T, conn *gorm.DB, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	require.NoError(t, conn.Where("id = ?", id).First(&order).Error)
	return order.Status
}

func deliveryFor(t *testing.T, eventType string, data any) eventbus.Delivery {
	t.Helper()
	env, err := events.New(eventType, data, uuid.New(), nil)
	require.NoError(t, err)
	body, err := env.Marshal()
	require.NoError(t, err)
	return eventbus.Delivery{MessageID: env.EventID.String(), Body: body}
}

func TestHandleInventoryResultReservedMovesNewToReserved(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)
	order := seedOrder(t, conn, enums.OrderStatusNew)

	d := deliveryFor(t, events.TypeInventoryReserved, events.InventoryReservedData{
		OrderID:       order.ID,
		ReservationID: uuid.New(),
	})
	require.NoError(t, consumers.HandleInventoryResult(context.Background(), d))
	assert.Equal(t, enums.OrderStatusReserved, orderStatus(t, conn, order.ID))

	// A late InventoryReserved against a terminal order is a no-op.
	failed := seedOrder(t, conn, enums.OrderStatusFailed)
	d = deliveryFor(t, events.TypeInventoryReserved, events.InventoryReservedData{
		OrderID:       failed.ID,
		ReservationID: uuid.New(),
	})
	require.NoError(t, consumers.HandleInventoryResult(context.Background(), d))
	assert.Equal(t, enums.OrderStatusFailed, orderStatus(t, conn, failed.ID))
}

func TestHandleInventoryResultFailedRespectsConfirmedGuard(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)

	reserved := seedOrder(t, conn, enums.OrderStatusReserved)
	d := deliveryFor(t, events.TypeInventoryFailed, events.InventoryFailedData{
		OrderID:       reserved.ID,
		ReservationID: uuid.New(),
		Reason:        "INSUFFICIENT_STOCK:SKU-A available=0 requested=2",
	})
	require.NoError(t, consumers.HandleInventoryResult(context.Background(), d))
	assert.Equal(t, enums.OrderStatusFailed, orderStatus(t, conn, reserved.ID))

	confirmed := seedOrder(t, conn, enums.OrderStatusConfirmed)
	d = deliveryFor(t, events.TypeInventoryFailed, events.InventoryFailedData{
		OrderID:       confirmed.ID,
		ReservationID: uuid.New(),
		Reason:        "SKU_NOT_FOUND:SKU-X",
	})
	require.NoError(t, consumers.HandleInventoryResult(context.Background(), d))
	assert.Equal(t, enums.OrderStatusConfirmed, orderStatus(t, conn, confirmed.ID))
}

func TestHandleInventoryResultReleasedOnlyRecordsConsumption(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)
	order := seedOrder(t, conn, enums.OrderStatusFailed)

	d := deliveryFor(t, events.TypeInventoryReleased, events.InventoryReleasedData{
		ReleaseID:     uuid.New(),
		OrderID:       order.ID,
		ReservationID: uuid.New(),
		Reason:        "PAYMENT_FAILED",
	})
	require.NoError(t, consumers.HandleInventoryResult(context.Background(), d))

	assert.Equal(t, enums.OrderStatusFailed, orderStatus(t, conn, order.ID))
	var ledger []models.ConsumedMessage
	require.NoError(t, conn.Find(&ledger).Error)
	require.Len(t, ledger, 1)
}

func TestHandlePaymentResultSucceededConfirmsUnlessFailed(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)

	reserved := seedOrder(t, conn, enums.OrderStatusReserved)
	d := deliveryFor(t, events.TypePaymentSucceeded, events.PaymentSucceededData{
		OrderID:   reserved.ID,
		PaymentID: uuid.New(),
	})
	require.NoError(t, consumers.HandlePaymentResult(context.Background(), d))
	assert.Equal(t, enums.OrderStatusConfirmed, orderStatus(t, conn, reserved.ID))

	failed := seedOrder(t, conn, enums.OrderStatusFailed)
	d = deliveryFor(t, events.TypePaymentSucceeded, events.PaymentSucceededData{
		OrderID:   failed.ID,
		PaymentID: uuid.New(),
	})
	require.NoError(t, consumers.HandlePaymentResult(context.Background(), d))
	assert.Equal(t, enums.OrderStatusFailed, orderStatus(t, conn, failed.ID))
}

func TestHandlePaymentResultFailedStagesCompensation(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)
	order := seedOrder(t, conn, enums.OrderStatusReserved)

	d := deliveryFor(t, events.TypePaymentFailed, events.PaymentFailedData{
		OrderID:   order.ID,
		PaymentID: uuid.New(),
		Reason:    "MOCK_DECLINED",
	})
	require.NoError(t, consumers.HandlePaymentResult(context.Background(), d))

	assert.Equal(t, enums.OrderStatusFailed, orderStatus(t, conn, order.ID))

	var outboxRows []models.OutboxEvent
	require.NoError(t, conn.Find(&outboxRows).Error)
	require.Len(t, outboxRows, 1)
	assert.Equal(t, events.TypeInventoryReleaseRequested, outboxRows[0].EventType)

	_, payload, err := events.Decode(outboxRows[0].Payload)
	require.NoError(t, err)
	data, ok := payload.(*events.InventoryReleaseRequestedData)
	require.True(t, ok)
	assert.Equal(t, order.ID, data.OrderID)
	assert.Equal(t, "PAYMENT_FAILED", data.Reason)
}

func TestHandlePaymentResultFailedAfterConfirmedIsNoOp(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)
	order := seedOrder(t, conn, enums.OrderStatusConfirmed)

	d := deliveryFor(t, events.TypePaymentFailed, events.PaymentFailedData{
		OrderID:   order.ID,
		PaymentID: uuid.New(),
		Reason:    "MOCK_DECLINED",
	})
	require.NoError(t, consumers.HandlePaymentResult(context.Background(), d))

	assert.Equal(t, enums.OrderStatusConfirmed, orderStatus(t, conn, order.ID))
	var outboxCount int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(0), outboxCount)
}

func TestHandlePaymentResultDuplicateDeliveryIsIgnored(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)
	order := seedOrder(t, conn, enums.OrderStatusReserved)

	d := deliveryFor(t, events.TypePaymentFailed, events.PaymentFailedData{
		OrderID:   order.ID,
		PaymentID: uuid.New(),
		Reason:    "MOCK_DECLINED",
	})
	require.NoError(t, consumers.HandlePaymentResult(context.Background(), d))
	require.NoError(t, consumers.HandlePaymentResult(context.Background(), d))

	var outboxCount int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&outboxCount).Error)
	assert.Equal(t, int64(1), outboxCount)
}

func TestHandleInventoryResultMalformedPayloadIsRejected(t *testing.T) {
	conn := setupOrderTestDB(t)
	consumers := newOrderTestConsumers(t, conn)

	err := consumers.HandleInventoryResult(context.Background(), eventbus.Delivery{
		MessageID: uuid.NewString(),
		Body:      []byte("{not json"),
	})
	var nonRetry eventbus.NonRetryableError
	require.ErrorAs(t, err, &nonRetry)
}
