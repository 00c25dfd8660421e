package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newAuthServer(t *testing.T, authCalls *atomic.Int64, expiresIn float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)

		var creds map[string]string
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("failed to decode auth request: %v", err)
		}
		if creds["client_id"] != "client-1" {
			t.Errorf("expected client_id client-1, got %s", creds["client_id"])
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"expires_in":   expiresIn,
		})
	}))
}

func TestGatewayClient_CreateIntent(t *testing.T) {
	var authCalls atomic.Int64
	authServer := newAuthServer(t, &authCalls, 3600)
	defer authServer.Close()

	var gotBody map[string]any
	payServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("expected bearer token, got %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode intent request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"payment_request_id": "pr-1",
			"checkout_url":       "https://pay.example.com/pr-1",
		})
	}))
	defer payServer.Close()

	client := NewGatewayClient(GatewayConfig{
		AuthURL:    authServer.URL,
		PaymentURL: payServer.URL,
		ClientID:   "client-1",
		POSID:      "pos-9",
	}, nil)

	intentID, checkoutURL, err := client.CreateIntent(context.Background(), 150050, "ARS", "order-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if intentID != "pr-1" {
		t.Errorf("expected intent pr-1, got %s", intentID)
	}
	if checkoutURL != "https://pay.example.com/pr-1" {
		t.Errorf("unexpected checkout url: %s", checkoutURL)
	}

	amount, ok := gotBody["amount"].(map[string]any)
	if !ok {
		t.Fatalf("expected amount object, got %v", gotBody["amount"])
	}
	if amount["value"] != "1500.50" {
		t.Errorf("expected amount value 1500.50, got %v", amount["value"])
	}
	if gotBody["external_payment_id"] != "order-abc" {
		t.Errorf("expected external ref order-abc, got %v", gotBody["external_payment_id"])
	}
}

func TestGatewayClient_TokenCache(t *testing.T) {
	t.Run("reuses token within its lifetime", func(t *testing.T) {
		var authCalls atomic.Int64
		authServer := newAuthServer(t, &authCalls, 3600)
		defer authServer.Close()

		payServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"payment_request_id": "pr-1"})
		}))
		defer payServer.Close()

		client := NewGatewayClient(GatewayConfig{
			AuthURL:    authServer.URL,
			PaymentURL: payServer.URL,
			ClientID:   "client-1",
		}, nil)

		for i := 0; i < 3; i++ {
			if _, _, err := client.CreateIntent(context.Background(), 100000, "ARS", "order-x"); err != nil {
				t.Fatalf("call %d failed: %v", i+1, err)
			}
		}

		if got := authCalls.Load(); got != 1 {
			t.Errorf("expected a single auth call, got %d", got)
		}
	})

	t.Run("refreshes token inside the expiry buffer", func(t *testing.T) {
		var authCalls atomic.Int64
		// 30s lifetime sits entirely inside the 60s refresh buffer, so every
		// call re-authenticates.
		authServer := newAuthServer(t, &authCalls, 30)
		defer authServer.Close()

		payServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"payment_request_id": "pr-1"})
		}))
		defer payServer.Close()

		client := NewGatewayClient(GatewayConfig{
			AuthURL:    authServer.URL,
			PaymentURL: payServer.URL,
			ClientID:   "client-1",
		}, nil)

		for i := 0; i < 2; i++ {
			if _, _, err := client.CreateIntent(context.Background(), 100000, "ARS", "order-x"); err != nil {
				t.Fatalf("call %d failed: %v", i+1, err)
			}
		}

		if got := authCalls.Load(); got != 2 {
			t.Errorf("expected auth per call, got %d", got)
		}
	})
}

func TestGatewayClient_CheckStatus(t *testing.T) {
	var authCalls atomic.Int64
	authServer := newAuthServer(t, &authCalls, 3600)
	defer authServer.Close()

	payServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pr-7" {
			t.Errorf("expected path /pr-7, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": map[string]string{"name": "approved"},
		})
	}))
	defer payServer.Close()

	client := NewGatewayClient(GatewayConfig{
		AuthURL:    authServer.URL,
		PaymentURL: payServer.URL,
		ClientID:   "client-1",
	}, nil)

	status, err := client.CheckStatus(context.Background(), "pr-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "APPROVED" {
		t.Errorf("expected APPROVED, got %s", status)
	}
}

func TestGatewayClient_AuthFailure(t *testing.T) {
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer authServer.Close()

	client := NewGatewayClient(GatewayConfig{
		AuthURL:  authServer.URL,
		ClientID: "client-1",
	}, nil)

	if _, _, err := client.CreateIntent(context.Background(), 100000, "ARS", "order-x"); err == nil {
		t.Fatal("expected error when auth fails")
	}
}
