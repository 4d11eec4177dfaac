package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lokapasar/backend-lapak/internal/resilience"
)

// HTTPGateway registers checkouts against the hosted payment processor's
// orders API. Calls go through the resilient client so a processor outage
// trips the breaker instead of stalling every checkout.
type HTTPGateway struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Client    *resilience.HTTPClient
}

type gatewayOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type gatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrder implements Gateway.
func (g *HTTPGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (GatewayOrder, error) {
	if g == nil || g.Client == nil {
		return GatewayOrder{}, errors.New("http gateway not configured")
	}
	if amount <= 0 {
		return GatewayOrder{}, errors.New("gateway order amount must be positive")
	}
	body, err := json.Marshal(gatewayOrderRequest{Amount: amount, Currency: currency, Receipt: receipt})
	if err != nil {
		return GatewayOrder{}, err
	}
	url := strings.TrimRight(g.BaseURL, "/") + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.KeyID, g.KeySecret)

	resp, err := g.Client.Do(ctx, req)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("gateway create order: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return GatewayOrder{}, fmt.Errorf("gateway create order: unexpected status %s", resp.Status)
	}
	var decoded gatewayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return GatewayOrder{}, fmt.Errorf("gateway create order: decode response: %w", err)
	}
	if decoded.ID == "" {
		return GatewayOrder{}, errors.New("gateway create order: response missing order id")
	}
	return GatewayOrder{ID: decoded.ID, Amount: decoded.Amount, Currency: decoded.Currency}, nil
}

// NewHTTPGateway builds a gateway client with the default resilience profile.
func NewHTTPGateway(baseURL, keyID, keySecret string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL:   baseURL,
		KeyID:     keyID,
		KeySecret: keySecret,
		Client: &resilience.HTTPClient{
			Client:      &http.Client{Timeout: 10 * time.Second},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
	}
}
