package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// ReservationOutcome is the committed result of a reserve attempt, replayed
// verbatim when the same order arrives again.
type ReservationOutcome struct {
	ReservationID uuid.UUID
	OrderID       uuid.UUID
	Status        enums.ReservationStatus
	Reason        string
	CreatedAt     time.Time
	Items         []events.ReservedItem
}

// ReleaseOutcome describes stock returned to the pool for one order.
type ReleaseOutcome struct {
	ReleaseID     uuid.UUID
	OrderID       uuid.UUID
	ReservationID uuid.UUID
	Reason        string
	ReleasedAt    time.Time
	Items         []events.ReservedItem
}

// Service owns stock levels and the reservation lifecycle.
type Service struct {
	db    *dbpkg.Client
	repo  Repository
	cache *StockCache
	logg  *logger.Logger
}

type ServiceParams struct {
	DB    *dbpkg.Client
	Repo  Repository
	Cache *StockCache
	Logg  *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if params.Logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		db:    params.DB,
		repo:  params.Repo,
		cache: params.Cache,
		logg:  params.Logg,
	}, nil
}

// UpsertStock sets the available quantity for a SKU, creating the row on
// first sight. Reserved quantity is never touched here.
func (s *Service) UpsertStock(ctx context.Context, skuID string, availableQty int) (*models.SkuStock, error) {
	normalized, err := normalizeSkuID(skuID)
	if err != nil {
		return nil, err
	}
	if availableQty < 0 {
		return nil, errors.New(errors.CodeValidation, "available quantity cannot be negative")
	}

	var stock *models.SkuStock
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.GetStock(ctx, normalized)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.AvailableQty = availableQty
			stock = existing
		} else {
			stock = &models.SkuStock{SkuID: normalized, AvailableQty: availableQty}
		}
		return repo.SaveStock(ctx, stock)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(ctx, stock)
	return stock, nil
}

// GetStock reads a SKU snapshot, serving from the cache when possible and
// repopulating it on a database read.
func (s *Service) GetStock(ctx context.Context, skuID string) (*models.SkuStock, error) {
	normalized, err := normalizeSkuID(skuID)
	if err != nil {
		return nil, err
	}

	if cached, ok := s.cache.Get(ctx, normalized); ok {
		return cached, nil
	}

	stock, err := s.repo.GetStock(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if stock == nil {
		return nil, errors.New(errors.CodeNotFound, "stock not found for sku "+normalized)
	}

	s.cache.Put(ctx, stock)
	return stock, nil
}

// Reserve runs the reservation engine in a dedicated transaction. Consumers
// that need to commit alongside other rows use ReserveTx directly.
func (s *Service) Reserve(ctx context.Context, orderID uuid.UUID, items []events.ReservedItem) (*ReservationOutcome, error) {
	var outcome *ReservationOutcome
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		outcome, err = s.ReserveTx(ctx, tx, orderID, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ReserveTx attempts to reserve stock for an order inside the caller's
// transaction. The first call for an order decides the outcome; replays
// return the stored row untouched.
func (s *Service) ReserveTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []events.ReservedItem) (*ReservationOutcome, error) {
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindReservationByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return outcomeFromReservation(existing), nil
	}

	skuIDs, requestedBySku, err := aggregateRequested(items)
	if err != nil {
		return nil, err
	}

	locked, err := repo.LockStocks(ctx, skuIDs)
	if err != nil {
		return nil, err
	}

	if len(locked) != len(skuIDs) {
		missing := firstMissingSku(skuIDs, locked)
		return s.saveFailed(ctx, repo, orderID, "SKU_NOT_FOUND:"+missing, skuIDs, requestedBySku)
	}

	for _, stock := range locked {
		requested := requestedBySku[stock.SkuID]
		if stock.AvailableQty < requested {
			reason := fmt.Sprintf("INSUFFICIENT_STOCK:%s available=%d requested=%d",
				stock.SkuID, stock.AvailableQty, requested)
			return s.saveFailed(ctx, repo, orderID, reason, skuIDs, requestedBySku)
		}
	}

	reservation := &models.InventoryReservation{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.ReservationStatusReserved,
	}
	for i := range locked {
		stock := &locked[i]
		requested := requestedBySku[stock.SkuID]
		stock.AvailableQty -= requested
		stock.ReservedQty += requested
		if err := repo.UpdateStockQuantities(ctx, stock); err != nil {
			return nil, err
		}
		reservation.Items = append(reservation.Items, models.InventoryReservationItem{
			ID:            uuid.New(),
			ReservationID: reservation.ID,
			SkuID:         stock.SkuID,
			Quantity:      requested,
		})
	}

	if err := repo.CreateReservation(ctx, reservation); err != nil {
		return nil, err
	}

	s.cache.Evict(ctx, skuIDs...)
	return outcomeFromReservation(reservation), nil
}

// ReleaseTx returns reserved stock to the pool inside the caller's
// transaction. Orders with no active reservation yield a nil outcome and no
// mutation; only a RESERVED reservation can be released.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string) (*ReleaseOutcome, error) {
	repo := s.repo.WithTx(tx)

	reservation, err := repo.FindReservationByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if reservation == nil {
		return nil, nil
	}
	switch reservation.Status {
	case enums.ReservationStatusReleased, enums.ReservationStatusFailed:
		return nil, nil
	case enums.ReservationStatusReserved:
	default:
		return nil, errors.New(errors.CodeStateConflict,
			"unsupported reservation status for release: "+string(reservation.Status))
	}

	skuIDs := make([]string, 0, len(reservation.Items))
	for _, item := range reservation.Items {
		skuIDs = append(skuIDs, item.SkuID)
	}

	locked, err := repo.LockStocks(ctx, skuIDs)
	if err != nil {
		return nil, err
	}
	stockBySku := make(map[string]*models.SkuStock, len(locked))
	for i := range locked {
		stockBySku[locked[i].SkuID] = &locked[i]
	}

	released := make([]events.ReservedItem, 0, len(reservation.Items))
	for _, item := range reservation.Items {
		stock, ok := stockBySku[item.SkuID]
		if !ok {
			return nil, errors.New(errors.CodeInternal, "stock row missing for sku "+item.SkuID)
		}
		if stock.ReservedQty < item.Quantity {
			return nil, errors.New(errors.CodeInternal, fmt.Sprintf(
				"reserved quantity underflow for sku %s reserved=%d releasing=%d",
				item.SkuID, stock.ReservedQty, item.Quantity))
		}
		stock.ReservedQty -= item.Quantity
		stock.AvailableQty += item.Quantity
		if err := repo.UpdateStockQuantities(ctx, stock); err != nil {
			return nil, err
		}
		released = append(released, events.ReservedItem{SkuID: item.SkuID, Quantity: item.Quantity})
	}

	if err := repo.MarkReservationReleased(ctx, reservation.ID, reason); err != nil {
		return nil, err
	}

	releasedAt := time.Now().UTC()
	releaseEvent := &models.InventoryReleaseEvent{
		ID:            uuid.New(),
		OrderID:       orderID,
		ReservationID: reservation.ID,
		Reason:        reason,
		CreatedAt:     releasedAt,
	}
	if err := repo.InsertReleaseEvent(ctx, releaseEvent); err != nil {
		return nil, err
	}

	s.cache.Evict(ctx, skuIDs...)
	return &ReleaseOutcome{
		ReleaseID:     releaseEvent.ID,
		OrderID:       orderID,
		ReservationID: reservation.ID,
		Reason:        reason,
		ReleasedAt:    releasedAt,
		Items:         released,
	}, nil
}

func (s *Service) saveFailed(
	ctx context.Context,
	repo Repository,
	orderID uuid.UUID,
	reason string,
	skuIDs []string,
	requestedBySku map[string]int,
) (*ReservationOutcome, error) {
	failed := &models.InventoryReservation{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.ReservationStatusFailed,
		Reason:  &reason,
	}
	for _, sku := range skuIDs {
		failed.Items = append(failed.Items, models.InventoryReservationItem{
			ID:            uuid.New(),
			ReservationID: failed.ID,
			SkuID:         sku,
			Quantity:      requestedBySku[sku],
		})
	}
	if err := repo.CreateReservation(ctx, failed); err != nil {
		return nil, err
	}
	return outcomeFromReservation(failed), nil
}

// aggregateRequested merges duplicate SKU lines, preserving first-seen order
// so failure reasons stay deterministic.
func aggregateRequested(items []events.ReservedItem) ([]string, map[string]int, error) {
	if len(items) == 0 {
		return nil, nil, errors.New(errors.CodeValidation, "at least one item is required")
	}

	order := make([]string, 0, len(items))
	requestedBySku := make(map[string]int, len(items))
	for _, item := range items {
		skuID, err := normalizeSkuID(item.SkuID)
		if err != nil {
			return nil, nil, err
		}
		if item.Quantity <= 0 {
			return nil, nil, errors.New(errors.CodeValidation, "quantity must be positive for sku "+skuID)
		}
		if _, seen := requestedBySku[skuID]; !seen {
			order = append(order, skuID)
		}
		requestedBySku[skuID] += item.Quantity
	}
	return order, requestedBySku, nil
}

func firstMissingSku(skuIDs []string, locked []models.SkuStock) string {
	found := make(map[string]struct{}, len(locked))
	for _, stock := range locked {
		found[stock.SkuID] = struct{}{}
	}
	for _, sku := range skuIDs {
		if _, ok := found[sku]; !ok {
			return sku
		}
	}
	return "unknown"
}

func normalizeSkuID(skuID string) (string, error) {
	trimmed := strings.TrimSpace(skuID)
	if trimmed == "" {
		return "", errors.New(errors.CodeValidation, "sku id is required")
	}
	return trimmed, nil
}

func outcomeFromReservation(r *models.InventoryReservation) *ReservationOutcome {
	items := make([]events.ReservedItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, events.ReservedItem{SkuID: item.SkuID, Quantity: item.Quantity})
	}
	reason := ""
	if r.Reason != nil {
		reason = *r.Reason
	}
	return &ReservationOutcome{
		ReservationID: r.ID,
		OrderID:       r.OrderID,
		Status:        r.Status,
		Reason:        reason,
		CreatedAt:     r.CreatedAt,
		Items:         items,
	}
}
