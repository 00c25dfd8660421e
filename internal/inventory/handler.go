package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/boutiqueops/checkout/internal/domain"
)

type Handler struct {
	ledger *Ledger
	logger *slog.Logger
}

func NewHandler(ledger *Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

func (h *Handler) HandleListStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.ledger.ListStock(r.Context())
	if err != nil {
		h.logger.Error("failed to list stock", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("variantId")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	variantID, err := h.ledger.CanonicalVariantID(r.Context(), raw)
	if err != nil {
		if errors.Is(err, domain.ErrVariantNotFound) {
			h.writeError(w, http.StatusNotFound, "variant not found")
			return
		}
		h.logger.Error("failed to resolve variant", "error", err, "raw_id", raw)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stock, err := h.ledger.GetStock(r.Context(), variantID)
	if err != nil {
		h.logger.Error("failed to get stock", "error", err, "variant_id", variantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if stock == nil {
		h.writeError(w, http.StatusNotFound, "variant not found")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

type creditRequest struct {
	Quantity   int    `json:"quantity"`
	LocationID string `json:"location_id"`
}

// HandleCredit is the manual stock-correction endpoint. It reverses a prior
// debit; the normal reservation flow never goes through here.
func (h *Handler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("variantId")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "missing variant id")
		return
	}

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity <= 0 || req.LocationID == "" {
		h.writeError(w, http.StatusBadRequest, "quantity and location_id are required")
		return
	}

	variantID, err := h.ledger.CanonicalVariantID(r.Context(), raw)
	if err != nil {
		if errors.Is(err, domain.ErrVariantNotFound) {
			h.writeError(w, http.StatusNotFound, "variant not found")
			return
		}
		h.logger.Error("failed to resolve variant", "error", err, "raw_id", raw)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := h.ledger.Credit(r.Context(), variantID, req.Quantity, req.LocationID); err != nil {
		if errors.Is(err, domain.ErrVariantNotFound) {
			h.writeError(w, http.StatusNotFound, "variant location not found")
			return
		}
		h.logger.Error("failed to credit stock", "error", err, "variant_id", variantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	stock, err := h.ledger.GetStock(r.Context(), variantID)
	if err != nil {
		h.logger.Error("failed to get updated stock", "error", err, "variant_id", variantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("stock credited", "variant_id", variantID, "quantity", req.Quantity, "location_id", req.LocationID)
	h.writeJSON(w, http.StatusOK, stock)
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
