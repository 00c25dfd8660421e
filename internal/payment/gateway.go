package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// GatewayConfig carries the payment gateway endpoints and credentials.
type GatewayConfig struct {
	AuthURL      string
	PaymentURL   string
	ClientID     string
	ClientSecret string
	Audience     string
	POSID        string
	CallbackURL  string
}

// GatewayClient talks to the payment gateway. It owns its token cache as
// explicit state (token plus expiry instant, refreshed with a 60 second
// buffer); construct one per process and pass it where needed.
type GatewayClient struct {
	cfg        GatewayConfig
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewGatewayClient(cfg GatewayConfig, client *http.Client) *GatewayClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GatewayClient{cfg: cfg, httpClient: client}
}

const tokenRefreshBuffer = 60 * time.Second

func (c *GatewayClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshBuffer)) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"audience":      c.cfg.Audience,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway auth: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gateway auth returned status %d: %s", resp.StatusCode, body)
	}

	var auth struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", fmt.Errorf("decode gateway auth response: %w", err)
	}
	if auth.AccessToken == "" {
		return "", fmt.Errorf("gateway auth response carried no access_token")
	}
	if auth.ExpiresIn <= 0 {
		auth.ExpiresIn = 3600
	}

	c.token = auth.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)
	return c.token, nil
}

// CreateIntent registers a payment request with the gateway and returns the
// intent id plus the hosted checkout URL the customer pays at.
func (c *GatewayClient) CreateIntent(ctx context.Context, amountCents int64, currency, externalRef string) (string, string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", "", err
	}

	body := map[string]any{
		"pos_id":              c.cfg.POSID,
		"external_payment_id": externalRef,
		"callback_url":        c.cfg.CallbackURL,
		"amount": map[string]any{
			"currency": currency,
			"value":    fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100),
		},
	}

	var created struct {
		PaymentRequestID string `json:"payment_request_id"`
		CheckoutURL      string `json:"checkout_url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.cfg.PaymentURL, token, body, &created); err != nil {
		return "", "", fmt.Errorf("create payment intent: %w", err)
	}
	if created.PaymentRequestID == "" {
		return "", "", fmt.Errorf("gateway returned no payment_request_id")
	}
	return created.PaymentRequestID, created.CheckoutURL, nil
}

// CheckStatus returns the gateway's status name for an intent, uppercased
// (APPROVED, REJECTED, PENDING, ...).
func (c *GatewayClient) CheckStatus(ctx context.Context, intentID string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var details struct {
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
	}
	url := fmt.Sprintf("%s/%s", c.cfg.PaymentURL, intentID)
	if err := c.doJSON(ctx, http.MethodGet, url, token, nil, &details); err != nil {
		return "", fmt.Errorf("check payment status: %w", err)
	}
	return strings.ToUpper(details.Status.Name), nil
}

// CancelIntent asks the gateway to drop an unpaid intent. Best effort from
// callers' point of view; they log failures and move on.
func (c *GatewayClient) CancelIntent(ctx context.Context, intentID string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/cancel", c.cfg.PaymentURL, intentID)
	if err := c.doJSON(ctx, http.MethodPost, url, token, nil, nil); err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	return nil
}

func (c *GatewayClient) doJSON(ctx context.Context, method, url, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
