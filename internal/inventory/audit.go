package inventory

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/FredZ6/cloud-project/pkg/db/models"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/logger"
	"github.com/FredZ6/cloud-project/pkg/pagination"
)

// MaxExportLimit caps a single CSV export.
const MaxExportLimit = 10_000

var csvHeader = []string{"release_id", "order_id", "reservation_id", "reason", "created_at"}

// ReleaseEventPage is an offset page over the release audit log.
type ReleaseEventPage struct {
	Items         []models.InventoryReleaseEvent
	Page          int
	Size          int
	TotalElements int64
	TotalPages    int
	HasNext       bool
}

// ReleaseEventCursorPage is a keyset page; NextCursor is empty on the last page.
type ReleaseEventCursorPage struct {
	Items      []models.InventoryReleaseEvent
	Size       int
	HasMore    bool
	NextCursor string
}

// AuditService answers read-only queries over inventory release events.
type AuditService struct {
	repo Repository
	logg *logger.Logger
}

func NewAuditService(repo Repository, logg *logger.Logger) (*AuditService, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &AuditService{repo: repo, logg: logg}, nil
}

// ListReleaseEvents returns one offset page ordered newest first.
func (s *AuditService) ListReleaseEvents(ctx context.Context, filter ReleaseEventFilter, page, size int) (*ReleaseEventPage, error) {
	if err := validateTimeRange(filter); err != nil {
		return nil, err
	}
	if page < 0 {
		return nil, errors.New(errors.CodeValidation, "page must be >= 0")
	}
	if size < 1 || size > pagination.MaxLimit {
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("size must be between 1 and %d", pagination.MaxLimit))
	}

	total, err := s.repo.CountReleaseEvents(ctx, filter)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListReleaseEvents(ctx, filter, page*size, size)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	return &ReleaseEventPage{
		Items:         items,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		HasNext:       int64(page+1)*int64(size) < total,
	}, nil
}

// ListReleaseEventsCursor returns one keyset page strictly before the given
// cursor. Fetches size+1 rows to decide whether more exist.
func (s *AuditService) ListReleaseEventsCursor(ctx context.Context, filter ReleaseEventFilter, size int, after string) (*ReleaseEventCursorPage, error) {
	if err := validateTimeRange(filter); err != nil {
		return nil, err
	}
	if size < 1 || size > pagination.MaxLimit {
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("size must be between 1 and %d", pagination.MaxLimit))
	}

	cursor, err := pagination.ParseCursor(after)
	if err != nil {
		return nil, errors.New(errors.CodeValidation, "invalid cursor")
	}

	rows, err := s.repo.ListReleaseEventsAfter(ctx, filter, cursor, size+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > size
	items := rows
	if hasMore {
		items = rows[:size]
	}

	nextCursor := ""
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &ReleaseEventCursorPage{
		Items:      items,
		Size:       size,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, nil
}

// ExportReleaseEventsCSV renders at most limit matching rows, newest first.
func (s *AuditService) ExportReleaseEventsCSV(ctx context.Context, filter ReleaseEventFilter, limit int) ([]byte, error) {
	if err := validateTimeRange(filter); err != nil {
		return nil, err
	}
	if limit < 1 || limit > MaxExportLimit {
		return nil, errors.New(errors.CodeValidation,
			fmt.Sprintf("limit must be between 1 and %d", MaxExportLimit))
	}

	rows, err := s.repo.ListReleaseEvents(ctx, filter, 0, limit)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, event := range rows {
		record := []string{
			event.ID.String(),
			event.OrderID.String(),
			event.ReservationID.String(),
			event.Reason,
			event.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateTimeRange(filter ReleaseEventFilter) error {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return errors.New(errors.CodeValidation, "from must be <= to")
	}
	return nil
}
