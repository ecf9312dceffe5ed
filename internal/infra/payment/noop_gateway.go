package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway approves everything. Used in dev mode so the checkout flow can
// be exercised without a provider account.
type NoopGateway struct {
	seq atomic.Int64
}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency, description, callbackURL string, meta map[string]interface{}) (string, string, error) {
	ref := fmt.Sprintf("noop-%d", g.seq.Add(1))
	return ref, "https://localhost/pay/" + ref, nil
}

func (g *NoopGateway) VerifyPayment(ctx context.Context, ref string, amount decimal.Decimal, currency string) (bool, string, error) {
	return true, "noop-tx-" + ref, nil
}

func (g *NoopGateway) RefundPayment(ctx context.Context, ref string, amount decimal.Decimal, currency, reason string) (string, error) {
	return "noop-refund-" + ref, nil
}
