package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/db/models"
)

// Repository persists the one payment decision taken per order.
type Repository interface {
	FindByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PaymentRecord, error)
	Create(ctx context.Context, tx *gorm.DB, record *models.PaymentRecord) error
}

type gormRepository struct{}

func NewRepository() Repository {
	return &gormRepository{}
}

func (r *gormRepository) FindByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) Create(ctx context.Context, tx *gorm.DB, record *models.PaymentRecord) error {
	return tx.WithContext(ctx).Create(record).Error
}
