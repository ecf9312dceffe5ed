package adapter

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the outbound port to the external payment provider.
// Implementations own authentication and signature details. All calls carry a
// bounded timeout; a transport error means "unknown", never success.
type PaymentGateway interface {
	Name() string

	// CreatePayment registers a payment intent and returns the provider
	// reference plus the URL the user is redirected to.
	CreatePayment(ctx context.Context, amount decimal.Decimal, currency, description, callbackURL string, meta map[string]interface{}) (ref string, payURL string, err error)

	// VerifyPayment performs the authoritative settled-or-not check. ok=false
	// with err=nil means the provider answered and the payment is not settled.
	VerifyPayment(ctx context.Context, ref string, amount decimal.Decimal, currency string) (ok bool, gatewayTx string, err error)

	// RefundPayment reverses a settled payment (full amount when amount is
	// zero) and returns the provider refund id.
	RefundPayment(ctx context.Context, ref string, amount decimal.Decimal, currency, reason string) (refundID string, err error)
}
