package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/boutiqueops/checkout/internal/domain"
)

type stubConfirmer struct {
	order *domain.Order
	err   error

	calls      int
	gotOrderID string
	gotRef     string
	gotMethod  string
}

func (s *stubConfirmer) Confirm(ctx context.Context, orderID, paymentRef, method string) (*domain.Order, error) {
	s.calls++
	s.gotOrderID = orderID
	s.gotRef = paymentRef
	s.gotMethod = method
	return s.order, s.err
}

type stubChecker struct {
	status string
	err    error
}

func (s *stubChecker) CheckStatus(ctx context.Context, intentID string) (string, error) {
	return s.status, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func confirmVia(t *testing.T, handler *Handler, orderID, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders/{id}/confirm", handler.HandleConfirm)

	req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID+"/confirm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_HandleConfirm(t *testing.T) {
	t.Run("confirms reserved order", func(t *testing.T) {
		stub := &stubConfirmer{order: &domain.Order{ID: "ord-1", Status: domain.OrderStatusFulfilled}}
		handler := NewHandler(stub, nil, testLogger())

		rec := confirmVia(t, handler, "ord-1", `{"payment_reference": "pay-1", "payment_method": "transferencia"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.gotRef != "pay-1" || stub.gotMethod != "transferencia" {
			t.Errorf("unexpected confirm args: ref=%s method=%s", stub.gotRef, stub.gotMethod)
		}
	})

	t.Run("defaults payment method to manual", func(t *testing.T) {
		stub := &stubConfirmer{order: &domain.Order{ID: "ord-1", Status: domain.OrderStatusFulfilled}}
		handler := NewHandler(stub, nil, testLogger())

		rec := confirmVia(t, handler, "ord-1", `{"payment_reference": "pay-1"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if stub.gotMethod != "manual" {
			t.Errorf("expected method manual, got %s", stub.gotMethod)
		}
	})

	t.Run("maps expired reservation to 410", func(t *testing.T) {
		handler := NewHandler(&stubConfirmer{err: domain.ErrReservationExpired}, nil, testLogger())

		rec := confirmVia(t, handler, "ord-1", `{}`)

		if rec.Code != http.StatusGone {
			t.Errorf("expected status 410, got %d", rec.Code)
		}
	})

	t.Run("maps unknown order to 404", func(t *testing.T) {
		handler := NewHandler(&stubConfirmer{err: domain.ErrOrderNotFound}, nil, testLogger())

		rec := confirmVia(t, handler, "ord-1", `{}`)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("maps unconfirmable order to 409", func(t *testing.T) {
		handler := NewHandler(&stubConfirmer{err: domain.ErrOrderNotConfirmable}, nil, testLogger())

		rec := confirmVia(t, handler, "ord-1", `{}`)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})
}

func webhookVia(t *testing.T, handler *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.HandleWebhook(rec, req)
	return rec
}

func TestHandler_HandleWebhook(t *testing.T) {
	t.Run("confirms approved payment", func(t *testing.T) {
		stub := &stubConfirmer{order: &domain.Order{ID: "abc", Status: domain.OrderStatusFulfilled}}
		handler := NewHandler(stub, nil, testLogger())

		rec := webhookVia(t, handler, `{"payment_id": "pr-1", "external_order_ref": "order-abc", "status": "approved"}`)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", rec.Code)
		}
		if stub.calls != 1 {
			t.Fatalf("expected one confirmation, got %d", stub.calls)
		}
		if stub.gotOrderID != "abc" {
			t.Errorf("expected order id abc, got %s", stub.gotOrderID)
		}
		if stub.gotMethod != "gateway" {
			t.Errorf("expected method gateway, got %s", stub.gotMethod)
		}
	})

	t.Run("ignores non-final status", func(t *testing.T) {
		stub := &stubConfirmer{}
		handler := NewHandler(stub, nil, testLogger())

		rec := webhookVia(t, handler, `{"payment_id": "pr-1", "external_order_ref": "order-abc", "status": "pending"}`)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", rec.Code)
		}
		if stub.calls != 0 {
			t.Errorf("expected no confirmation, got %d", stub.calls)
		}
	})

	t.Run("acknowledges rejected payment without confirming", func(t *testing.T) {
		stub := &stubConfirmer{}
		handler := NewHandler(stub, nil, testLogger())

		rec := webhookVia(t, handler, `{"payment_id": "pr-1", "external_order_ref": "order-abc", "status": "rejected"}`)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", rec.Code)
		}
		if stub.calls != 0 {
			t.Errorf("expected no confirmation, got %d", stub.calls)
		}
	})

	t.Run("acknowledges malformed payload", func(t *testing.T) {
		stub := &stubConfirmer{}
		handler := NewHandler(stub, nil, testLogger())

		rec := webhookVia(t, handler, `not json`)

		if rec.Code != http.StatusAccepted {
			t.Errorf("expected status 202, got %d", rec.Code)
		}
		if stub.calls != 0 {
			t.Errorf("expected no confirmation, got %d", stub.calls)
		}
	})

	t.Run("acknowledges confirmation failures", func(t *testing.T) {
		stub := &stubConfirmer{err: domain.ErrOrderNotFound}
		handler := NewHandler(stub, nil, testLogger())

		rec := webhookVia(t, handler, `{"payment_id": "pr-1", "external_order_ref": "order-ghost", "status": "approved"}`)

		if rec.Code != http.StatusAccepted {
			t.Errorf("expected status 202 even on failure, got %d", rec.Code)
		}
	})

	t.Run("verified status overrides payload", func(t *testing.T) {
		stub := &stubConfirmer{order: &domain.Order{ID: "abc", Status: domain.OrderStatusFulfilled}}
		handler := NewHandler(stub, &stubChecker{status: "APPROVED"}, testLogger())

		// The payload claims pending; the gateway says approved.
		rec := webhookVia(t, handler, `{"payment_id": "pr-1", "external_order_ref": "order-abc", "status": "pending"}`)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d", rec.Code)
		}
		if stub.calls != 1 {
			t.Errorf("expected confirmation from verified status, got %d calls", stub.calls)
		}
	})
}
