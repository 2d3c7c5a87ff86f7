package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/events"
)

type UpsertStockRequest struct {
	SkuID        string `json:"sku_id" validate:"required"`
	AvailableQty int    `json:"available_qty" validate:"min=0"`
}

type StockResponse struct {
	SkuID        string    `json:"sku_id"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ReserveStockItem struct {
	SkuID    string `json:"sku_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type ReserveStockRequest struct {
	OrderID uuid.UUID          `json:"order_id" validate:"required"`
	Items   []ReserveStockItem `json:"items" validate:"required,min=1,dive"`
}

type ReservationItemResponse struct {
	SkuID    string `json:"sku_id"`
	Quantity int    `json:"quantity"`
}

type ReservationResponse struct {
	ReservationID uuid.UUID                 `json:"reservation_id"`
	OrderID       uuid.UUID                 `json:"order_id"`
	Status        string                    `json:"status"`
	Reason        string                    `json:"reason,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	Items         []ReservationItemResponse `json:"items"`
}

type ReleaseEventResponse struct {
	ReleaseID     uuid.UUID `json:"release_id"`
	OrderID       uuid.UUID `json:"order_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReleaseEventPageResponse struct {
	Items         []ReleaseEventResponse `json:"items"`
	Page          int                    `json:"page"`
	Size          int                    `json:"size"`
	TotalElements int64                  `json:"total_elements"`
	TotalPages    int                    `json:"total_pages"`
	HasNext       bool                   `json:"has_next"`
}

type ReleaseEventCursorPageResponse struct {
	Items      []ReleaseEventResponse `json:"items"`
	Size       int                    `json:"size"`
	HasMore    bool                   `json:"has_more"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

func toStockResponse(stock *models.SkuStock) StockResponse {
	return StockResponse{
		SkuID:        stock.SkuID,
		AvailableQty: stock.AvailableQty,
		ReservedQty:  stock.ReservedQty,
		UpdatedAt:    stock.UpdatedAt,
	}
}

func toReservationResponse(outcome *ReservationOutcome) ReservationResponse {
	items := make([]ReservationItemResponse, 0, len(outcome.Items))
	for _, item := range outcome.Items {
		items = append(items, ReservationItemResponse{SkuID: item.SkuID, Quantity: item.Quantity})
	}
	return ReservationResponse{
		ReservationID: outcome.ReservationID,
		OrderID:       outcome.OrderID,
		Status:        string(outcome.Status),
		Reason:        outcome.Reason,
		CreatedAt:     outcome.CreatedAt,
		Items:         items,
	}
}

func toReleaseEventResponses(rows []models.InventoryReleaseEvent) []ReleaseEventResponse {
	items := make([]ReleaseEventResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ReleaseEventResponse{
			ReleaseID:     row.ID,
			OrderID:       row.OrderID,
			ReservationID: row.ReservationID,
			Reason:        row.Reason,
			CreatedAt:     row.CreatedAt,
		})
	}
	return items
}

func toReservedItems(items []ReserveStockItem) []events.ReservedItem {
	out := make([]events.ReservedItem, 0, len(items))
	for _, item := range items {
		out = append(out, events.ReservedItem{SkuID: item.SkuID, Quantity: item.Quantity})
	}
	return out
}
