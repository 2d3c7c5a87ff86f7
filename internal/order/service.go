package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/auth"
	"github.com/FredZ6/cloud-project/pkg/config"
	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/events"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/outbox"
)

const idempotencyKeyTTL = 24 * time.Hour

var minUnitPrice = decimal.New(1, -2)

// Service creates orders and answers reads. Status transitions after
// creation are event-driven and live in Saga.
type Service struct {
	db     *dbpkg.Client
	repo   Repository
	outbox *outbox.Service
	jwtCfg config.JWTConfig
	logg   *logger.Logger
}

type ServiceParams struct {
	DB     *dbpkg.Client
	Repo   Repository
	Outbox *outbox.Service
	JWTCfg config.JWTConfig
	Logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client is required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if params.Logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		db:     params.DB,
		repo:   params.Repo,
		outbox: params.Outbox,
		jwtCfg: params.JWTCfg,
		logg:   params.Logg,
	}, nil
}

// CreateOrder persists a NEW order, its idempotency key, and the OrderCreated
// outbox row in one transaction. A key seen before returns the original order
// with the reused flag set.
func (s *Service) CreateOrder(ctx context.Context, idempotencyKey, authorization string, req CreateOrderRequest) (*OrderResponse, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return nil, errors.New(errors.CodeValidation, "Idempotency-Key header is required")
	}

	claims, err := auth.VerifyToken(s.jwtCfg, auth.StripBearer(authorization))
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnauthorized, err, "bearer token is required")
	}

	userID := strings.TrimSpace(req.UserID)
	if claims.UserID() != userID {
		return nil, errors.New(errors.CodeValidation, "user_id does not match token subject")
	}
	if role := strings.TrimSpace(s.jwtCfg.RequiredRole); role != "" && !claims.HasRole(role) {
		return nil, errors.New(errors.CodeForbidden, "missing required role: "+role)
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.getOrder(ctx, existing.OrderID, true)
	}

	identity := &events.Identity{UserID: userID, Roles: claims.Roles}
	order := buildOrder(userID, req.Items)

	raced := false
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		now := time.Now().UTC()
		keyRow := &models.IdempotencyKey{
			Key:       key,
			OrderID:   order.ID,
			Status:    enums.IdempotencyStatusCompleted,
			ExpiresAt: now.Add(idempotencyKeyTTL),
		}
		if err := repo.CreateIdempotencyKey(ctx, keyRow); err != nil {
			if dbpkg.IsUniqueViolation(err, "idempotency_keys_pkey") {
				raced = true
			}
			return err
		}

		env, err := events.New(events.TypeOrderCreated, orderCreatedData(order), uuid.Nil, identity)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(ctx, tx, env)
	})
	if err != nil {
		if raced {
			// Lost the insert race on the key: the winner's order is the answer.
			winner, lookupErr := s.repo.GetIdempotencyKey(ctx, key)
			if lookupErr == nil && winner != nil {
				return s.getOrder(ctx, winner.OrderID, true)
			}
		}
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(logCtx, "order created")
	return toOrderResponse(order, false), nil
}

// GetOrder returns one order with its items.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	return s.getOrder(ctx, orderID, false)
}

func (s *Service) getOrder(ctx context.Context, orderID uuid.UUID, reused bool) (*OrderResponse, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, errors.New(errors.CodeNotFound, "order not found: "+orderID.String())
	}
	return toOrderResponse(order, reused), nil
}

func buildOrder(userID string, items []OrderItemRequest) *models.Order {
	order := &models.Order{
		ID:     uuid.New(),
		UserID: userID,
		Status: enums.OrderStatusNew,
	}

	total := decimal.Zero
	for _, item := range items {
		price := item.Price.Round(2)
		order.Items = append(order.Items, models.OrderItem{
			ID:       uuid.New(),
			OrderID:  order.ID,
			SkuID:    strings.TrimSpace(item.SkuID),
			Quantity: item.Quantity,
			Price:    price,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	order.TotalAmount = total.Round(2)
	return order
}

func validateItems(items []OrderItemRequest) error {
	for _, item := range items {
		if strings.TrimSpace(item.SkuID) == "" {
			return errors.New(errors.CodeValidation, "sku_id is required")
		}
		if item.Quantity <= 0 {
			return errors.New(errors.CodeValidation, "quantity must be positive for sku "+item.SkuID)
		}
		if item.Price.Cmp(minUnitPrice) < 0 {
			return errors.New(errors.CodeValidation, "price must be at least 0.01 for sku "+item.SkuID)
		}
	}
	return nil
}

func orderCreatedData(order *models.Order) events.OrderCreatedData {
	lines := make([]events.OrderLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, events.OrderLine{
			SkuID:    item.SkuID,
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}
	return events.OrderCreatedData{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Items:       lines,
		TotalAmount: order.TotalAmount,
	}
}
