package payment

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/consumed"
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/eventbus"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

type publishedMessage struct {
	Exchange   string
	RoutingKey string
	MessageID  string
	Headers    amqp.Table
	Body       []byte
}

type capturingBus struct {
	published []publishedMessage
	failNext  bool
}

func (b *capturingBus) Publish(_ context.Context, exchange, routingKey, messageID string, headers amqp.Table, body []byte) error {
	if b.failNext {
		b.failNext = false
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, publishedMessage{
		Exchange:   exchange,
		RoutingKey: routingKey,
		MessageID:  messageID,
		Headers:    headers,
		Body:       body,
	})
	return nil
}

func (b *capturingBus) Exchange() string { return "ecom.events" }

func setupPaymentTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.PaymentRecord{},
		&models.ConsumedMessage{},
	))
	return conn
}

func newPaymentTestConsumers(t *testing.T, conn *gorm.DB, mode string) (*Consumers, *capturingBus) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "payment-test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repo: NewRepository(),
		Cfg:  config.PaymentConfig{Mode: mode, FailureReason: "MOCK_DECLINED"},
		Logg: logg,
	})
	require.NoError(t, err)

	bus := &capturingBus{}
	consumers, err := NewConsumers(ConsumersParams{
		DB:     dbpkg.NewWithConn(conn),
		Svc:    svc,
		Bus:    bus,
		Ledger: consumed.NewLedger(),
		Logg:   logg,
	})
	require.NoError(t, err)
	return consumers, bus
}

func reservedDelivery(t *testing.T, orderID uuid.UUID) eventbus.Delivery {
	t.Helper()
	env, err := events.New(events.TypeInventoryReserved, events.InventoryReservedData{
		OrderID:       orderID,
		ReservationID: uuid.New(),
	}, uuid.New(), &events.Identity{UserID: "user-1"})
	require.NoError(t, err)
	body, err := env.Marshal()
	require.NoError(t, err)
	return eventbus.Delivery{MessageID: env.EventID.String(), Body: body}
}

func TestHandleInventoryReservedSuccessModePublishesSucceeded(t *testing.T) {
	conn := setupPaymentTestDB(t)
	consumers, bus := newPaymentTestConsumers(t, conn, "SUCCESS")
	orderID := uuid.New()

	require.NoError(t, consumers.HandleInventoryReserved(context.Background(), reservedDelivery(t, orderID)))

	require.Len(t, bus.published, 1)
	assert.Equal(t, "ecom.events", bus.published[0].Exchange)
	assert.Equal(t, events.RoutingKeyPaymentSucceeded, bus.published[0].RoutingKey)

	env, payload, err := events.Decode(bus.published[0].Body)
	require.NoError(t, err)
	assert.Equal(t, env.EventID.String(), bus.published[0].MessageID)
	data, ok := payload.(*events.PaymentSucceededData)
	require.True(t, ok)
	assert.Equal(t, orderID, data.OrderID)

	var record models.PaymentRecord
	require.NoError(t, conn.Where("order_id = ?", orderID).First(&record).Error)
	assert.Equal(t, enums.PaymentStatusSucceeded, record.Status)
	assert.Nil(t, record.Reason)
	assert.Equal(t, record.ID, data.PaymentID)
}

func TestHandleInventoryReservedFailModePublishesFailed(t *testing.T) {
	conn := setupPaymentTestDB(t)
	consumers, bus := newPaymentTestConsumers(t, conn, "FAIL")
	orderID := uuid.New()

	require.NoError(t, consumers.HandleInventoryReserved(context.Background(), reservedDelivery(t, orderID)))

	require.Len(t, bus.published, 1)
	assert.Equal(t, events.RoutingKeyPaymentFailed, bus.published[0].RoutingKey)

	_, payload, err := events.Decode(bus.published[0].Body)
	require.NoError(t, err)
	data, ok := payload.(*events.PaymentFailedData)
	require.True(t, ok)
	assert.Equal(t, "MOCK_DECLINED", data.Reason)

	var record models.PaymentRecord
	require.NoError(t, conn.Where("order_id = ?", orderID).First(&record).Error)
	assert.Equal(t, enums.PaymentStatusFailed, record.Status)
	require.NotNil(t, record.Reason)
	assert.Equal(t, "MOCK_DECLINED", *record.Reason)
}

func TestHandleInventoryReservedReplayKeepsStoredOutcome(t *testing.T) {
	conn := setupPaymentTestDB(t)
	orderID := uuid.New()

	failing, _ := newPaymentTestConsumers(t, conn, "FAIL")
	require.NoError(t, failing.HandleInventoryReserved(context.Background(), reservedDelivery(t, orderID)))

	// A fresh delivery for the same order must replay the recorded decision
	// even when the configured mode has since changed.
	succeeding, bus := newPaymentTestConsumers(t, conn, "SUCCESS")
	require.NoError(t, succeeding.HandleInventoryReserved(context.Background(), reservedDelivery(t, orderID)))

	require.Len(t, bus.published, 1)
	assert.Equal(t, events.RoutingKeyPaymentFailed, bus.published[0].RoutingKey)

	var count int64
	require.NoError(t, conn.Model(&models.PaymentRecord{}).Where("order_id = ?", orderID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandleInventoryReservedDuplicateDeliveryIsIgnored(t *testing.T) {
	conn := setupPaymentTestDB(t)
	consumers, bus := newPaymentTestConsumers(t, conn, "SUCCESS")

	d := reservedDelivery(t, uuid.New())
	require.NoError(t, consumers.HandleInventoryReserved(context.Background(), d))
	require.NoError(t, consumers.HandleInventoryReserved(context.Background(), d))

	assert.Len(t, bus.published, 1)
}

func TestHandleInventoryReservedPublishFailureRollsBack(t *testing.T) {
	conn := setupPaymentTestDB(t)
	consumers, bus := newPaymentTestConsumers(t, conn, "SUCCESS")
	orderID := uuid.New()

	d := reservedDelivery(t, orderID)
	bus.failNext = true
	err := consumers.HandleInventoryReserved(context.Background(), d)
	require.Error(t, err)
	var nonRetry eventbus.NonRetryableError
	assert.False(t, errors.As(err, &nonRetry))

	// Nothing committed, so the redelivery runs the whole handler again.
	var ledgerCount int64
	require.NoError(t, conn.Model(&models.ConsumedMessage{}).Count(&ledgerCount).Error)
	assert.Equal(t, int64(0), ledgerCount)

	require.NoError(t, consumers.HandleInventoryReserved(context.Background(), d))
	require.Len(t, bus.published, 1)
	assert.Equal(t, events.RoutingKeyPaymentSucceeded, bus.published[0].RoutingKey)
}

func TestHandleInventoryReservedMalformedPayloadStaysRetryable(t *testing.T) {
	conn := setupPaymentTestDB(t)
	consumers, bus := newPaymentTestConsumers(t, conn, "SUCCESS")

	err := consumers.HandleInventoryReserved(context.Background(), eventbus.Delivery{
		MessageID: uuid.NewString(),
		Body:      []byte("{not json"),
	})
	require.Error(t, err)
	var nonRetry eventbus.NonRetryableError
	assert.False(t, errors.As(err, &nonRetry))
	assert.Empty(t, bus.published)
}

func TestHashedModeIsDeterministic(t *testing.T) {
	orderID := uuid.New()
	first := hashParity(orderID)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, hashParity(orderID))
	}

	// Over many ids both outcomes occur.
	succeeded, failed := 0, 0
	for i := 0; i < 64; i++ {
		if hashParity(uuid.New()) {
			succeeded++
		} else {
			failed++
		}
	}
	assert.Positive(t, succeeded)
	assert.Positive(t, failed)
}

func TestParseMockMode(t *testing.T) {
	assert.Equal(t, ModeFail, ParseMockMode(" fail "))
	assert.Equal(t, ModeHashed, ParseMockMode("hashed"))
	assert.Equal(t, ModeSuccess, ParseMockMode("SUCCESS"))
	assert.Equal(t, ModeSuccess, ParseMockMode("bogus"))
	assert.Equal(t, ModeSuccess, ParseMockMode(""))
}
