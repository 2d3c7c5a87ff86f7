package consumed

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/FredZ6/cloud-project/pkg/db"
	"github.com/FredZ6/cloud-project/pkg/db/models"
)

// Ledger is the idempotent-consumer gate. Both checks run inside the
// handler's transaction so the dedup insert commits atomically with the
// domain mutation it guards.
type Ledger struct{}

func NewLedger() *Ledger {
	return &Ledger{}
}

// IsConsumed reports whether this (message, consumer) pair already committed.
func (l *Ledger) IsConsumed(tx *gorm.DB, messageID, consumer string) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.ConsumedMessage{}).
		Where("message_id = ? AND consumer = ?", messageID, consumer).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkConsumed appends the ledger row. A concurrent duplicate losing the
// unique-index race is treated as already consumed.
func (l *Ledger) MarkConsumed(tx *gorm.DB, messageID, consumer string) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row := models.ConsumedMessage{
		ID:        uuid.New(),
		MessageID: messageID,
		Consumer:  consumer,
	}
	if err := tx.Create(&row).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_consumed_messages_message_consumer") {
			return nil
		}
		return err
	}
	return nil
}

// ResolveMessageID picks the dedup key for a delivery: broker message id
// first, then the envelope event id, then a fresh UUID so processing can
// still proceed exactly once per delivery.
func ResolveMessageID(brokerMessageID string, eventID uuid.UUID) string {
	if id := strings.TrimSpace(brokerMessageID); id != "" {
		return id
	}
	if eventID != uuid.Nil {
		return eventID.String()
	}
	return uuid.NewString()
}
