package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FredZ6/cloud-project/api/responses"
	"github.com/FredZ6/cloud-project/api/validators"
	"github.com/FredZ6/cloud-project/pkg/errors"
	"github.com/FredZ6/cloud-project/pkg/logger"
)

// Handlers is the HTTP surface of the order service.
type Handlers struct {
	svc  *Service
	logg *logger.Logger
}

func NewHandlers(svc *Service, logg *logger.Logger) *Handlers {
	return &Handlers{svc: svc, logg: logg}
}

// CreateOrder returns 201 on first creation and 200 on an idempotent replay.
func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	resp, err := h.svc.CreateOrder(r.Context(), r.Header.Get("Idempotency-Key"), r.Header.Get("Authorization"), req)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	responses.WriteSuccessStatus(w, status, resp)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, errors.New(errors.CodeValidation, "orderId must be a UUID"))
		return
	}

	resp, err := h.svc.GetOrder(r.Context(), orderID)
	if err != nil {
		responses.WriteError(r.Context(), h.logg, w, err)
		return
	}
	responses.WriteSuccess(w, resp)
}
