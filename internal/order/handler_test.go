package order

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boutiqueops/checkout/internal/domain"
)

type stubService struct {
	checkoutResult *CheckoutResult
	checkoutErr    error
	cancelErr      error
	order          *domain.Order
	getErr         error

	gotUserID string
	gotReq    CheckoutRequest
}

func (s *stubService) Checkout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	s.gotUserID = userID
	s.gotReq = req
	return s.checkoutResult, s.checkoutErr
}

func (s *stubService) Cancel(ctx context.Context, orderID, reason string) error {
	return s.cancelErr
}

func (s *stubService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.order, s.getErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleCheckout(t *testing.T) {
	t.Run("creates reserved order", func(t *testing.T) {
		stub := &stubService{
			checkoutResult: &CheckoutResult{
				OrderID:              "ord-1",
				ReservationExpiresAt: time.Now().Add(30 * time.Minute),
				TotalCents:           350000,
			},
		}
		handler := NewHandler(stub, testLogger())

		body := `{"delivery_type": "envio", "shipping_address": "Calle Falsa 123", "shipping_cents": 50000}`
		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()

		handler.HandleCheckout(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.gotUserID != "user-1" {
			t.Errorf("expected user-1, got %s", stub.gotUserID)
		}
		if stub.gotReq.DeliveryType != domain.DeliveryShipping {
			t.Errorf("expected delivery type envio, got %s", stub.gotReq.DeliveryType)
		}

		var result CheckoutResult
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result.OrderID != "ord-1" {
			t.Errorf("expected order id ord-1, got %s", result.OrderID)
		}
	})

	t.Run("rejects missing user identity", func(t *testing.T) {
		handler := NewHandler(&stubService{}, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		handler.HandleCheckout(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("maps empty cart to 400", func(t *testing.T) {
		handler := NewHandler(&stubService{checkoutErr: domain.ErrEmptyCart}, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"delivery_type": "retiro"}`))
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()

		handler.HandleCheckout(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("maps insufficient stock to 409", func(t *testing.T) {
		stub := &stubService{checkoutErr: &domain.InsufficientStockError{
			VariantID:   "v1",
			ProductName: "Remera Azul",
			Requested:   3,
			Available:   1,
		}}
		handler := NewHandler(stub, testLogger())

		req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"delivery_type": "retiro"}`))
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()

		handler.HandleCheckout(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Remera Azul") {
			t.Errorf("expected product name in error body, got %s", rec.Body.String())
		}
	})
}

func TestHandler_HandleGet(t *testing.T) {
	t.Run("returns order", func(t *testing.T) {
		stub := &stubService{order: &domain.Order{ID: "ord-1", Status: domain.OrderStatusReserved}}
		handler := NewHandler(stub, testLogger())

		mux := http.NewServeMux()
		mux.HandleFunc("GET /orders/{id}", handler.HandleGet)

		req := httptest.NewRequest(http.MethodGet, "/orders/ord-1", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var order domain.Order
		if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if order.ID != "ord-1" {
			t.Errorf("expected ord-1, got %s", order.ID)
		}
	})

	t.Run("maps unknown order to 404", func(t *testing.T) {
		handler := NewHandler(&stubService{getErr: domain.ErrOrderNotFound}, testLogger())

		mux := http.NewServeMux()
		mux.HandleFunc("GET /orders/{id}", handler.HandleGet)

		req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleCancel(t *testing.T) {
	t.Run("cancels reserved order", func(t *testing.T) {
		handler := NewHandler(&stubService{}, testLogger())

		mux := http.NewServeMux()
		mux.HandleFunc("POST /orders/{id}/cancel", handler.HandleCancel)

		req := httptest.NewRequest(http.MethodPost, "/orders/ord-1/cancel", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("maps finalized order to 409", func(t *testing.T) {
		handler := NewHandler(&stubService{cancelErr: domain.ErrOrderAlreadyFinalized}, testLogger())

		mux := http.NewServeMux()
		mux.HandleFunc("POST /orders/{id}/cancel", handler.HandleCancel)

		req := httptest.NewRequest(http.MethodPost, "/orders/ord-1/cancel", strings.NewReader(`{"reason": "user_cancelled"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})
}
