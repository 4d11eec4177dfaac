package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// GatewayOrder is the opaque reference issued by the payment processor for
// one checkout. All shop orders of the checkout share it.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
}

// Gateway abstracts the upstream payment processor. Only order registration
// is needed here; capture happens on the processor's side and comes back as
// a signed verification request.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (GatewayOrder, error)
}

// SandboxGateway synthesises deterministic gateway order ids without a
// network call, mirroring how the hosted sandbox derives them from the
// receipt. It drives local development and the integration-style tests.
type SandboxGateway struct {
	Prefix string
}

// CreateOrder registers a checkout with the sandbox.
func (g SandboxGateway) CreateOrder(_ context.Context, amount int64, currency, receipt string) (GatewayOrder, error) {
	if amount <= 0 {
		return GatewayOrder{}, errors.New("gateway order amount must be positive")
	}
	if strings.TrimSpace(receipt) == "" {
		return GatewayOrder{}, errors.New("receipt is required")
	}
	prefix := g.Prefix
	if prefix == "" {
		prefix = "order"
	}
	sum := sha256.Sum256([]byte(receipt))
	return GatewayOrder{
		ID:       prefix + "_" + hex.EncodeToString(sum[:])[:14],
		Amount:   amount,
		Currency: currency,
	}, nil
}
