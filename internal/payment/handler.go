package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/boutiqueops/checkout/internal/domain"
	"github.com/boutiqueops/checkout/internal/order"
)

// OrderConfirmer is what the HTTP layer needs from the Confirmer.
type OrderConfirmer interface {
	Confirm(ctx context.Context, orderID, paymentRef, method string) (*domain.Order, error)
}

// StatusChecker re-verifies a payment's status with the gateway before a
// webhook is trusted. Nil disables verification (the payload status is used
// as-is).
type StatusChecker interface {
	CheckStatus(ctx context.Context, intentID string) (string, error)
}

type Handler struct {
	confirmer OrderConfirmer
	checker   StatusChecker
	logger    *slog.Logger
}

func NewHandler(confirmer OrderConfirmer, checker StatusChecker, logger *slog.Logger) *Handler {
	return &Handler{confirmer: confirmer, checker: checker, logger: logger}
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference"`
	PaymentMethod    string `json:"payment_method"`
}

// HandleConfirm is the authenticated user-action confirmation path.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "manual"
	}

	ord, err := h.confirmer.Confirm(r.Context(), orderID, req.PaymentReference, req.PaymentMethod)
	if err != nil {
		h.writeConfirmError(w, orderID, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":   ord.Status,
		"order_id": ord.ID,
	})
}

type webhookPayload struct {
	PaymentID        string `json:"payment_id"`
	ExternalOrderRef string `json:"external_order_ref"`
	Status           string `json:"status"`
}

// HandleWebhook receives asynchronous gateway pushes. It always acknowledges
// with 2xx, even when processing fails, so the gateway stops retrying; the
// idempotent confirmer plus status-poll reconciliation converge eventually.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error("invalid webhook payload", "error", err)
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
		return
	}

	h.processWebhook(r.Context(), payload)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}

func (h *Handler) processWebhook(ctx context.Context, payload webhookPayload) {
	orderID, err := order.OrderIDFromRef(payload.ExternalOrderRef)
	if err != nil {
		h.logger.Error("could not resolve webhook order reference", "error", err, "external_ref", payload.ExternalOrderRef)
		return
	}

	status := strings.ToUpper(payload.Status)
	if h.checker != nil {
		verified, err := h.checker.CheckStatus(ctx, payload.PaymentID)
		if err != nil {
			h.logger.Error("failed to verify payment status", "error", err, "payment_id", payload.PaymentID)
			return
		}
		status = verified
	}

	switch status {
	case "APPROVED":
		if _, err := h.confirmer.Confirm(ctx, orderID, payload.PaymentID, "gateway"); err != nil {
			h.logger.Error("webhook confirmation failed", "error", err, "order_id", orderID, "payment_id", payload.PaymentID)
			return
		}
		h.logger.Info("order confirmed via webhook", "order_id", orderID, "payment_id", payload.PaymentID)
	case "REJECTED", "CANCELLED", "REFUNDED":
		h.logger.Warn("payment not approved", "order_id", orderID, "status", status)
	default:
		h.logger.Info("ignoring non-final payment status", "order_id", orderID, "status", status)
	}
}

func (h *Handler) writeConfirmError(w http.ResponseWriter, orderID string, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrReservationExpired):
		h.writeError(w, http.StatusGone, "order reservation has expired")
	case errors.Is(err, domain.ErrOrderNotConfirmable), errors.Is(err, domain.ErrOrderAlreadyFinalized):
		h.writeError(w, http.StatusConflict, "order cannot be confirmed")
	case domain.IsInsufficientStock(err):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("failed to confirm order", "error", err, "order_id", orderID)
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
