package outbox

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
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

type stubPublish struct {
	RoutingKey string
	MessageID  string
	Headers    amqp.Table
	Body       []byte
}

type stubBus struct {
	published []stubPublish
	failures  int
}

func (b *stubBus) Publish(_ context.Context, _, routingKey, messageID string, headers amqp.Table, body []byte) error {
	if b.failures > 0 {
		b.failures--
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, stubPublish{
		RoutingKey: routingKey,
		MessageID:  messageID,
		Headers:    headers,
		Body:       body,
	})
	return nil
}

func (b *stubBus) Exchange() string { return "ecom.events" }

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}))
	return conn
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "outbox-test", Level: zerolog.Disabled, Output: io.Discard})
}

func enqueueEvent(t *testing.T, conn *gorm.DB, svc *Service) events.Envelope {
	t.Helper()

	env, err := events.New(events.TypeOrderCreated, events.OrderCreatedData{
		OrderID: uuid.New(),
		UserID:  "user-1",
	}, uuid.New(), nil)
	require.NoError(t, err)
	require.NoError(t, dbpkg.NewWithConn(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Enqueue(context.Background(), tx, env)
	}))
	return env
}

func TestEnqueueStoresPendingRowWithRoutingKey(t *testing.T) {
	conn := setupOutboxTestDB(t)
	svc := NewService(NewRepository(conn), testLogger())

	env := enqueueEvent(t, conn, svc)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, events.TypeOrderCreated, row.EventType)
	assert.Equal(t, events.RoutingKeyOrderCreated, row.RoutingKey)
	assert.Equal(t, enums.OutboxStatusPending, row.Status)

	decoded, _, err := events.Decode(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
}

func TestEnqueueRejectsUnknownEventType(t *testing.T) {
	conn := setupOutboxTestDB(t)
	svc := NewService(NewRepository(conn), testLogger())

	env, err := events.New("SomethingElse", map[string]string{}, uuid.New(), nil)
	require.NoError(t, err)

	err = dbpkg.NewWithConn(conn).WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Enqueue(context.Background(), tx, env)
	})
	require.Error(t, err)
}

func newTestDispatcher(t *testing.T, conn *gorm.DB, bus *stubBus) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(DispatcherParams{
		Config:    config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10},
		Logger:    testLogger(),
		DB:        dbpkg.NewWithConn(conn),
		Repo:      NewRepository(conn),
		Publisher: bus,
	})
	require.NoError(t, err)
	return d
}

func TestDispatcherPublishesPendingAndMarksSent(t *testing.T) {
	conn := setupOutboxTestDB(t)
	svc := NewService(NewRepository(conn), testLogger())
	env := enqueueEvent(t, conn, svc)

	bus := &stubBus{}
	d := newTestDispatcher(t, conn, bus)

	processed, err := d.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, bus.published, 1)
	assert.Equal(t, events.RoutingKeyOrderCreated, bus.published[0].RoutingKey)
	assert.Equal(t, env.EventType, bus.published[0].Headers["x-event-type"])
	assert.Equal(t, env.TraceID.String(), bus.published[0].Headers["x-trace-id"])
	assert.Equal(t, env.EventID.String(), bus.published[0].Headers["x-event-id"])

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.OutboxStatusSent, row.Status)
	assert.NotNil(t, row.SentAt)
	// The outbox row id doubles as the broker message id.
	assert.Equal(t, row.ID.String(), bus.published[0].MessageID)

	// Nothing left to do on the next tick.
	processed, err = d.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestDispatcherKeepsFailedRowsPending(t *testing.T) {
	conn := setupOutboxTestDB(t)
	svc := NewService(NewRepository(conn), testLogger())
	enqueueEvent(t, conn, svc)

	bus := &stubBus{failures: 1}
	d := newTestDispatcher(t, conn, bus)

	processed, err := d.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Empty(t, bus.published)

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.OutboxStatusPending, row.Status)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "broker unavailable")

	// The next tick retries and succeeds.
	processed, err = d.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	require.Len(t, bus.published, 1)

	require.NoError(t, conn.First(&row).Error)
	assert.Equal(t, enums.OutboxStatusSent, row.Status)
}

func TestFetchPendingHonorsLimitAndOrder(t *testing.T) {
	conn := setupOutboxTestDB(t)
	svc := NewService(NewRepository(conn), testLogger())
	for i := 0; i < 5; i++ {
		enqueueEvent(t, conn, svc)
	}

	repo := NewRepository(conn)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchPendingTx(tx, 3)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
		for i := 1; i < len(rows); i++ {
			assert.False(t, rows[i].CreatedAt.Before(rows[i-1].CreatedAt))
		}
		return nil
	}))
}
