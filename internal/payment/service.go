package payment

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/FredZ6/cloud-project/pkg/config"
	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/enums"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

const defaultFailureReason = "MOCK_DECLINED"

// MockMode selects how the mock charge decides.
type MockMode string

const (
	ModeSuccess MockMode = "SUCCESS"
	ModeFail    MockMode = "FAIL"
	ModeHashed  MockMode = "HASHED"
)

// ParseMockMode is lenient: unknown values fall back to SUCCESS so a typo in
// the environment never blocks the payment path.
func ParseMockMode(value string) MockMode {
	switch MockMode(strings.ToUpper(strings.TrimSpace(value))) {
	case ModeFail:
		return ModeFail
	case ModeHashed:
		return ModeHashed
	default:
		return ModeSuccess
	}
}

// Service holds the mock charge decision. The decision for an order is made
// once and stored; every later delivery for the same order replays the stored
// outcome instead of re-deciding.
type Service struct {
	repo          Repository
	mode          MockMode
	failureReason string
	logg          *logger.Logger
}

type ServiceParams struct {
	Repo Repository
	Cfg  config.PaymentConfig
	Logg *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if params.Logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	reason := strings.TrimSpace(params.Cfg.FailureReason)
	if reason == "" {
		reason = defaultFailureReason
	}
	return &Service{
		repo:          params.Repo,
		mode:          ParseMockMode(params.Cfg.Mode),
		failureReason: reason,
		logg:          params.Logg,
	}, nil
}

// DecideTx returns the payment record for the order, creating it on the first
// delivery. The stored record is sticky so replays cannot flip the outcome.
func (s *Service) DecideTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.PaymentRecord, error) {
	record, err := s.repo.FindByOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	record = &models.PaymentRecord{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.PaymentStatusSucceeded,
	}
	if !s.decideSuccess(orderID) {
		record.Status = enums.PaymentStatusFailed
		reason := s.failureReason
		record.Reason = &reason
	}
	if err := s.repo.Create(ctx, tx, record); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_id": record.ID.String(),
		"status":     string(record.Status),
	}), "payment decision recorded")
	return record, nil
}

func (s *Service) decideSuccess(orderID uuid.UUID) bool {
	switch s.mode {
	case ModeFail:
		return false
	case ModeHashed:
		return hashParity(orderID)
	default:
		return true
	}
}

// hashParity buckets an order id deterministically so HASHED mode splits
// traffic roughly in half and stays stable across restarts.
func hashParity(orderID uuid.UUID) bool {
	h := fnv.New64a()
	h.Write(orderID[:])
	return h.Sum64()%2 == 0
}
