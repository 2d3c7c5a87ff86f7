package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FredZ6/cloud-project/pkg/db/models"
)

type OrderItemRequest struct {
	SkuID    string          `json:"sku_id" validate:"required"`
	Quantity int             `json:"quantity" validate:"gt=0"`
	Price    decimal.Decimal `json:"price" validate:"required"`
}

type CreateOrderRequest struct {
	UserID string             `json:"user_id" validate:"required"`
	Items  []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderItemResponse struct {
	SkuID    string          `json:"sku_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	OrderID     uuid.UUID           `json:"order_id"`
	UserID      string              `json:"user_id"`
	Status      string              `json:"status"`
	TotalAmount decimal.Decimal     `json:"total_amount"`
	CreatedAt   time.Time           `json:"created_at"`
	Reused      bool                `json:"reused"`
	Items       []OrderItemResponse `json:"items"`
}

func toOrderResponse(order *models.Order, reused bool) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			SkuID:    item.SkuID,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return &OrderResponse{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
		Reused:      reused,
		Items:       items,
	}
}
