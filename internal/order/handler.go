package order

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/boutiqueops/checkout/internal/domain"
)

// CheckoutAPI is what the HTTP layer needs from the order service.
type CheckoutAPI interface {
	Checkout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error)
	Cancel(ctx context.Context, orderID, reason string) error
	Get(ctx context.Context, orderID string) (*domain.Order, error)
}

type Handler struct {
	service CheckoutAPI
	logger  *slog.Logger
}

func NewHandler(service CheckoutAPI, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type checkoutRequest struct {
	DeliveryType      string `json:"delivery_type"`
	ShippingAddress   string `json:"shipping_address"`
	ShippingCents     int64  `json:"shipping_cents"`
	PreferredLocation string `json:"preferred_location"`
	Notes             string `json:"notes"`
	PaymentMethod     string `json:"payment_method"`
}

// HandleCheckout creates a reserved order from the caller's cart. The auth
// layer upstream resolves the bearer token and passes the user id through the
// X-User-ID header.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.Checkout(r.Context(), userID, CheckoutRequest{
		DeliveryType:      domain.DeliveryType(req.DeliveryType),
		ShippingAddress:   req.ShippingAddress,
		ShippingCents:     req.ShippingCents,
		PreferredLocation: req.PreferredLocation,
		Notes:             req.Notes,
		PaymentMethod:     req.PaymentMethod,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("checkout accepted", "order_id", result.OrderID, "user_id", userID)
	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "user_cancelled"
	}

	if err := h.service.Cancel(r.Context(), id, req.Reason); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("order cancelled via API", "order_id", id, "reason", req.Reason)
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":   string(domain.OrderStatusCancelled),
		"order_id": id,
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		h.writeError(w, http.StatusBadRequest, "cart is empty")
	case errors.Is(err, domain.ErrInvalidDeliveryOption):
		h.writeError(w, http.StatusBadRequest, "invalid delivery option")
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrOrderAlreadyFinalized):
		h.writeError(w, http.StatusConflict, "order is already finalized")
	case domain.IsInsufficientStock(err):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("order request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
