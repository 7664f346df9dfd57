package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/pos-payments/internal"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/pos-payments/internal/fees"
	"github.com/frahmantamala/pos-payments/internal/transport"
)

// ServiceAPI is the orchestrator surface the HTTP layer depends on.
type ServiceAPI interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*PaymentResult, error)
	CalculateFees(ctx context.Context, input fees.CalculateFeesInput) (*fees.FeeCalculation, error)
	GetPayment(ctx context.Context, id string) (*datamodel.Payment, []*datamodel.AuditLog, error)
}

type Handler struct {
	*transport.BaseHandler
	service ServiceAPI
}

func NewHandler(logger *slog.Logger, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		service:     service,
	}
}

// ProcessPayment godoc
// @Summary Process a payment
// @Description Charges an order through the cheapest eligible provider with automatic fallback
// @Tags payments
// @Accept json
// @Produce json
// @Param payment body ProcessPaymentRequest true "payment request"
// @Success 201 {object} ProcessPaymentResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /payments [post]
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	var req ProcessPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := req.ToInput(internal.UserIDFromContext(r.Context()), clientIP(r), r.UserAgent())
	if err != nil {
		h.HandleError(w, err)
		return
	}

	result, err := h.service.ProcessPayment(r.Context(), input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, NewProcessPaymentResponse(result))
}

// CalculateFees godoc
// @Summary Calculate fees for an order
// @Description Quotes service charge, processor fee and customer total without charging
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CalculateFeesRequest true "fee calculation request"
// @Success 200 {object} fees.FeeCalculation
// @Failure 400 {object} map[string]interface{}
// @Router /payments/fees/calculate [post]
func (h *Handler) CalculateFees(w http.ResponseWriter, r *http.Request) {
	var req CalculateFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input, err := req.ToInput()
	if err != nil {
		h.HandleError(w, err)
		return
	}

	calculation, err := h.service.CalculateFees(r.Context(), input)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, calculation)
}

// GetPayment godoc
// @Summary Get a payment
// @Description Returns a payment with its full audit trail
// @Tags payments
// @Produce json
// @Param id path string true "payment id"
// @Success 200 {object} PaymentDetailResponse
// @Failure 404 {object} map[string]interface{}
// @Router /payments/{id} [get]
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, "payment id is required")
		return
	}

	p, trail, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewPaymentDetailResponse(p, trail))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
