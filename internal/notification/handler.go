package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/boutiqueops/checkout/internal/domain"
)

// Handler turns order lifecycle events into customer emails. Delivery is
// fire-and-forget: a failed send is logged and never affects order state.
type Handler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *Handler {
	return &Handler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

// HandleEvent routes one lifecycle event to the matching email template.
func (h *Handler) HandleEvent(ctx context.Context, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order event: %w", err)
	}

	h.logger.Info("processing order event", "order_id", event.OrderID, "status", event.Status)

	var subject, body string
	switch event.Status {
	case domain.OrderStatusReserved:
		subject = "Pedido recibido: " + event.OrderID
		body = fmt.Sprintf("Recibimos tu pedido de %d artículos. Completá el pago dentro de los próximos 30 minutos para confirmarlo.", event.ItemCount)
	case domain.OrderStatusFulfilled:
		subject = "Pago confirmado: " + event.OrderID
		body = "Tu pago fue confirmado. Estamos preparando tu pedido."
	case domain.OrderStatusCancelled:
		subject = "Pedido cancelado: " + event.OrderID
		body = "Tu pedido fue cancelado."
	case domain.OrderStatusExpired:
		subject = "Pedido vencido: " + event.OrderID
		body = "Tu pedido venció porque el pago no se completó a tiempo. Podés volver a intentarlo."
	default:
		h.logger.Warn("ignoring event with unknown status", "order_id", event.OrderID, "status", event.Status)
		return nil
	}

	if err := h.sendEmail(ctx, event.UserID+"@customers.example.com", subject, body); err != nil {
		return fmt.Errorf("send %s email for order %s: %w", event.Status, event.OrderID, err)
	}

	h.logger.Info("notification sent", "order_id", event.OrderID, "status", event.Status)
	return nil
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	payload := map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
