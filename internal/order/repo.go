package order

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
)

// Repository is the persistence surface of the order service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// TransitionStatus flips the order to next only while its current status
	// is one of allowedFrom, returning whether a row changed. The guard sits
	// in the UPDATE itself so concurrent result events cannot interleave.
	TransitionStatus(ctx context.Context, id uuid.UUID, next enums.OrderStatus, reason *string, allowedFrom ...enums.OrderStatus) (bool, error)

	GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error)
	CreateIdempotencyKey(ctx context.Context, row *models.IdempotencyKey) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, next enums.OrderStatus, reason *string, allowedFrom ...enums.OrderStatus) (bool, error) {
	updates := map[string]any{"status": next}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyKey, error) {
	var row models.IdempotencyKey
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) CreateIdempotencyKey(ctx context.Context, row *models.IdempotencyKey) error {
	return r.db.WithContext(ctx).Create(row).Error
}
