package inventory

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	pkgerrors "github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

func setupInventoryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&models.SkuStock{},
		&models.InventoryReservation{},
		&models.InventoryReservationItem{},
		&models.InventoryReleaseEvent{},
	))
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		DB:   dbpkg.NewWithConn(conn),
		Repo: NewRepository(conn),
		Logg: logger.New(logger.Options{ServiceName: "inventory-test", Level: zerolog.Disabled, Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func seedStock(t *testing.T, conn *gorm.DB, skuID string, available, reserved int) {
	t.Helper()
	require.NoError(t, conn.Create(&models.SkuStock{
		SkuID:        skuID,
		AvailableQty: available,
		ReservedQty:  reserved,
	}).Error)
}

func loadStock(t *testing.T, conn *gorm.DB, skuID string) models.SkuStock {
	t.Helper()
	var stock models.SkuStock
	require.NoError(t, conn.Where("sku_id = ?", skuID).First(&stock).Error)
	return stock
}

func TestReserveTxSuccessMovesStock(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 10, 0)
	seedStock(t, conn, "SKU-B", 5, 1)

	orderID := uuid.New()
	outcome, err := svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{
		{SkuID: "SKU-A", Quantity: 3},
		{SkuID: "SKU-B", Quantity: 2},
	})
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, enums.ReservationStatusReserved, outcome.Status)
	assert.Equal(t, orderID, outcome.OrderID)
	assert.Empty(t, outcome.Reason)
	assert.Len(t, outcome.Items, 2)

	stockA := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 7, stockA.AvailableQty)
	assert.Equal(t, 3, stockA.ReservedQty)

	stockB := loadStock(t, conn, "SKU-B")
	assert.Equal(t, 3, stockB.AvailableQty)
	assert.Equal(t, 3, stockB.ReservedQty)
}

func TestReserveTxAggregatesDuplicateSkuLines(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 10, 0)

	outcome, err := svc.ReserveTx(context.Background(), conn, uuid.New(), []events.ReservedItem{
		{SkuID: "SKU-A", Quantity: 2},
		{SkuID: "SKU-A", Quantity: 3},
	})
	require.NoError(t, err)

	require.Len(t, outcome.Items, 1)
	assert.Equal(t, "SKU-A", outcome.Items[0].SkuID)
	assert.Equal(t, 5, outcome.Items[0].Quantity)

	stock := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 5, stock.AvailableQty)
	assert.Equal(t, 5, stock.ReservedQty)
}

func TestReserveTxReplayReturnsStoredOutcome(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 10, 0)

	orderID := uuid.New()
	first, err := svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{{SkuID: "SKU-A", Quantity: 4}})
	require.NoError(t, err)

	// Same order again, even with a different payload, must not touch stock.
	second, err := svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{{SkuID: "SKU-A", Quantity: 9}})
	require.NoError(t, err)

	assert.Equal(t, first.ReservationID, second.ReservationID)
	assert.Equal(t, first.Status, second.Status)
	require.Len(t, second.Items, 1)
	assert.Equal(t, 4, second.Items[0].Quantity)

	stock := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 6, stock.AvailableQty)
	assert.Equal(t, 4, stock.ReservedQty)
}

func TestReserveTxUnknownSkuFailsWithoutMutation(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 10, 0)

	outcome, err := svc.ReserveTx(context.Background(), conn, uuid.New(), []events.ReservedItem{
		{SkuID: "SKU-A", Quantity: 1},
		{SkuID: "SKU-MISSING", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.ReservationStatusFailed, outcome.Status)
	assert.Equal(t, "SKU_NOT_FOUND:SKU-MISSING", outcome.Reason)
	assert.Len(t, outcome.Items, 2)

	stock := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 10, stock.AvailableQty)
	assert.Equal(t, 0, stock.ReservedQty)
}

func TestReserveTxInsufficientStockReportsFirstOffender(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 10, 0)
	seedStock(t, conn, "SKU-B", 1, 0)

	outcome, err := svc.ReserveTx(context.Background(), conn, uuid.New(), []events.ReservedItem{
		{SkuID: "SKU-A", Quantity: 2},
		{SkuID: "SKU-B", Quantity: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.ReservationStatusFailed, outcome.Status)
	assert.Equal(t, "INSUFFICIENT_STOCK:SKU-B available=1 requested=5", outcome.Reason)

	// Partial reservation must not survive a failed attempt.
	stockA := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 10, stockA.AvailableQty)
	assert.Equal(t, 0, stockA.ReservedQty)
}

func TestReserveTxFailedOutcomeIsSticky(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 1, 0)

	orderID := uuid.New()
	first, err := svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{{SkuID: "SKU-A", Quantity: 5}})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusFailed, first.Status)

	// Restock, then replay: the recorded failure still wins.
	require.NoError(t, conn.Model(&models.SkuStock{}).Where("sku_id = ?", "SKU-A").
		Update("available_qty", 100).Error)

	second, err := svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{{SkuID: "SKU-A", Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, enums.ReservationStatusFailed, second.Status)
	assert.Equal(t, first.ReservationID, second.ReservationID)
}

func TestReserveTxValidation(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)

	_, err := svc.ReserveTx(context.Background(), conn, uuid.New(), nil)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	_, err = svc.ReserveTx(context.Background(), conn, uuid.New(), []events.ReservedItem{{SkuID: "SKU-A", Quantity: 0}})
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	_, err = svc.ReserveTx(context.Background(), conn, uuid.New(), []events.ReservedItem{{SkuID: "  ", Quantity: 1}})
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}

func TestReleaseTxRestoresStockAndAppendsAudit(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 10, 0)
	seedStock(t, conn, "SKU-B", 4, 0)

	orderID := uuid.New()
	reserved, err := svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{
		{SkuID: "SKU-A", Quantity: 3},
		{SkuID: "SKU-B", Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusReserved, reserved.Status)

	outcome, err := svc.ReleaseTx(context.Background(), conn, orderID, "PAYMENT_FAILED")
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.Equal(t, orderID, outcome.OrderID)
	assert.Equal(t, reserved.ReservationID, outcome.ReservationID)
	assert.Equal(t, "PAYMENT_FAILED", outcome.Reason)
	assert.Len(t, outcome.Items, 2)

	stockA := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 10, stockA.AvailableQty)
	assert.Equal(t, 0, stockA.ReservedQty)

	var reservation models.InventoryReservation
	require.NoError(t, conn.Where("order_id = ?", orderID).First(&reservation).Error)
	assert.Equal(t, enums.ReservationStatusReleased, reservation.Status)
	require.NotNil(t, reservation.Reason)
	assert.Equal(t, "PAYMENT_FAILED", *reservation.Reason)

	var auditRows []models.InventoryReleaseEvent
	require.NoError(t, conn.Where("order_id = ?", orderID).Find(&auditRows).Error)
	require.Len(t, auditRows, 1)
	assert.Equal(t, outcome.ReleaseID, auditRows[0].ID)
	assert.Equal(t, reserved.ReservationID, auditRows[0].ReservationID)
}

func TestReleaseTxNoActiveReservation(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)
	seedStock(t, conn, "SKU-A", 5, 0)

	// Unknown order: nothing to release.
	outcome, err := svc.ReleaseTx(context.Background(), conn, uuid.New(), "PAYMENT_FAILED")
	require.NoError(t, err)
	assert.Nil(t, outcome)

	// Released twice: the second call is a no-op.
	orderID := uuid.New()
	_, err = svc.ReserveTx(context.Background(), conn, orderID, []events.ReservedItem{{SkuID: "SKU-A", Quantity: 2}})
	require.NoError(t, err)
	first, err := svc.ReleaseTx(context.Background(), conn, orderID, "PAYMENT_FAILED")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.ReleaseTx(context.Background(), conn, orderID, "PAYMENT_FAILED")
	require.NoError(t, err)
	assert.Nil(t, second)

	stock := loadStock(t, conn, "SKU-A")
	assert.Equal(t, 5, stock.AvailableQty)
	assert.Equal(t, 0, stock.ReservedQty)

	// FAILED reservations hold no stock, so there is nothing to return.
	failedOrder := uuid.New()
	failed, err := svc.ReserveTx(context.Background(), conn, failedOrder, []events.ReservedItem{{SkuID: "SKU-A", Quantity: 50}})
	require.NoError(t, err)
	require.Equal(t, enums.ReservationStatusFailed, failed.Status)

	outcome, err = svc.ReleaseTx(context.Background(), conn, failedOrder, "PAYMENT_FAILED")
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestUpsertAndGetStock(t *testing.T) {
	conn := setupInventoryTestDB(t)
	svc := newTestService(t, conn)

	created, err := svc.UpsertStock(context.Background(), " SKU-A ", 7)
	require.NoError(t, err)
	assert.Equal(t, "SKU-A", created.SkuID)
	assert.Equal(t, 7, created.AvailableQty)

	updated, err := svc.UpsertStock(context.Background(), "SKU-A", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.AvailableQty)
	assert.Equal(t, 0, updated.ReservedQty)

	got, err := svc.GetStock(context.Background(), "SKU-A")
	require.NoError(t, err)
	assert.Equal(t, 12, got.AvailableQty)

	_, err = svc.GetStock(context.Background(), "SKU-NOPE")
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())

	_, err = svc.UpsertStock(context.Background(), "SKU-A", -1)
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}
