package inventory

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/api/responses"
	"github.com/FredZ6/cloud-project/api/validators"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

const exportFilename = "inventory-release-events.csv"

// Handlers is the HTTP surface of the inventory service.
type Handlers struct {
	svc   *Service
	audit *AuditService
	logg  *logger.Logger
}

func NewHandlers(svc *Service, audit *AuditService, logg *logger.Logger) *Handlers {
	return &Handlers{svc: svc, audit: audit, logg: logg}
}

func (h *Handlers) UpsertStock(w http.ResponseWriter, r *http.Request) {
	var req UpsertStockRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	stock, err := h.svc.UpsertStock(r.Context(), req.SkuID, req.AvailableQty)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, toStockResponse(stock))
}

func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	stock, err := h.svc.GetStock(r.Context(), chi.URLParam(r, "skuId"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, toStockResponse(stock))
}

func (h *Handlers) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveStockRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	outcome, err := h.svc.Reserve(r.Context(), req.OrderID, toReservedItems(req.Items))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, toReservationResponse(outcome))
}

func (h *Handlers) ListReleaseEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseReleaseEventFilter(r)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	page, err := parseIntParam(r, "page", 0)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	size, err := parseIntParam(r, "size", 20)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	result, err := h.audit.ListReleaseEvents(r.Context(), filter, page, size)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, ReleaseEventPageResponse{
		Items:         toReleaseEventResponses(result.Items),
		Page:          result.Page,
		Size:          result.Size,
		TotalElements: result.TotalElements,
		TotalPages:    result.TotalPages,
		HasNext:       result.HasNext,
	})
}

func (h *Handlers) ListReleaseEventsCursor(w http.ResponseWriter, r *http.Request) {
	filter, err := parseReleaseEventFilter(r)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	size, err := parseIntParam(r, "size", 20)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	result, err := h.audit.ListReleaseEventsCursor(r.Context(), filter, size, r.URL.Query().Get("after"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, ReleaseEventCursorPageResponse{
		Items:      toReleaseEventResponses(result.Items),
		Size:       result.Size,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
	})
}

func (h *Handlers) ExportReleaseEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseReleaseEventFilter(r)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	limit, err := parseIntParam(r, "limit", 1000)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	csvBody, err := h.audit.ExportReleaseEventsCSV(r.Context(), filter, limit)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteCSV(w, exportFilename, csvBody)
}

func parseReleaseEventFilter(r *http.Request) (ReleaseEventFilter, error) {
	var filter ReleaseEventFilter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("orderId")); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New(errors.CodeValidation, "orderId must be a UUID")
		}
		filter.OrderID = &orderID
	}
	for name, dest := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New(errors.CodeValidation, name+" must be an RFC 3339 timestamp")
		}
		utc := ts.UTC()
		*dest = &utc
	}
	return filter, nil
}

func parseIntParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(errors.CodeValidation, name+" must be an integer")
	}
	return value, nil
}
