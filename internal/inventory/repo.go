package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/pagination"
)

// ReleaseEventFilter narrows audit queries; nil fields match everything.
type ReleaseEventFilter struct {
	OrderID *uuid.UUID
	From    *time.Time
	To      *time.Time
}

// Repository is the persistence surface of the reservation engine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetStock(ctx context.Context, skuID string) (*models.SkuStock, error)
	SaveStock(ctx context.Context, stock *models.SkuStock) error
	LockStocks(ctx context.Context, skuIDs []string) ([]models.SkuStock, error)
	UpdateStockQuantities(ctx context.Context, stock *models.SkuStock) error

	FindReservationByOrder(ctx context.Context, orderID uuid.UUID) (*models.InventoryReservation, error)
	CreateReservation(ctx context.Context, reservation *models.InventoryReservation) error
	MarkReservationReleased(ctx context.Context, id uuid.UUID, reason string) error

	InsertReleaseEvent(ctx context.Context, event *models.InventoryReleaseEvent) error
	CountReleaseEvents(ctx context.Context, filter ReleaseEventFilter) (int64, error)
	ListReleaseEvents(ctx context.Context, filter ReleaseEventFilter, offset, limit int) ([]models.InventoryReleaseEvent, error)
	ListReleaseEventsAfter(ctx context.Context, filter ReleaseEventFilter, after *pagination.Cursor, limit int) ([]models.InventoryReleaseEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetStock(ctx context.Context, skuID string) (*models.SkuStock, error) {
	var stock models.SkuStock
	err := r.db.WithContext(ctx).Where("sku_id = ?", skuID).First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

func (r *repository) SaveStock(ctx context.Context, stock *models.SkuStock) error {
	return r.db.WithContext(ctx).Save(stock).Error
}

// LockStocks selects every requested SKU row with an exclusive row lock in a
// single query, so concurrent reservations over overlapping SKU sets cannot
// deadlock on acquisition order.
func (r *repository) LockStocks(ctx context.Context, skuIDs []string) ([]models.SkuStock, error) {
	var stocks []models.SkuStock
	q := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("sku_id IN ?", skuIDs).Order("sku_id ASC").Find(&stocks).Error
	return stocks, err
}

func (r *repository) UpdateStockQuantities(ctx context.Context, stock *models.SkuStock) error {
	return r.db.WithContext(ctx).Model(&models.SkuStock{}).
		Where("sku_id = ?", stock.SkuID).
		Updates(map[string]any{
			"available_qty": stock.AvailableQty,
			"reserved_qty":  stock.ReservedQty,
		}).Error
}

func (r *repository) FindReservationByOrder(ctx context.Context, orderID uuid.UUID) (*models.InventoryReservation, error) {
	var reservation models.InventoryReservation
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("order_id = ?", orderID).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) CreateReservation(ctx context.Context, reservation *models.InventoryReservation) error {
	return r.db.WithContext(ctx).Create(reservation).Error
}

func (r *repository) MarkReservationReleased(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.InventoryReservation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": enums.ReservationStatusReleased,
			"reason": reason,
		}).Error
}

func (r *repository) InsertReleaseEvent(ctx context.Context, event *models.InventoryReleaseEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) CountReleaseEvents(ctx context.Context, filter ReleaseEventFilter) (int64, error) {
	var count int64
	err := r.applyFilter(r.db.WithContext(ctx).Model(&models.InventoryReleaseEvent{}), filter).
		Count(&count).Error
	return count, err
}

func (r *repository) ListReleaseEvents(ctx context.Context, filter ReleaseEventFilter, offset, limit int) ([]models.InventoryReleaseEvent, error) {
	var rows []models.InventoryReleaseEvent
	err := r.applyFilter(r.db.WithContext(ctx), filter).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListReleaseEventsAfter(ctx context.Context, filter ReleaseEventFilter, after *pagination.Cursor, limit int) ([]models.InventoryReleaseEvent, error) {
	q := r.applyFilter(r.db.WithContext(ctx), filter)
	if after != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}
	var rows []models.InventoryReleaseEvent
	err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) applyFilter(q *gorm.DB, filter ReleaseEventFilter) *gorm.DB {
	if filter.OrderID != nil {
		q = q.Where("order_id = ?", *filter.OrderID)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("created_at <= ?", *filter.To)
	}
	return q
}
