package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"   // created; awaiting external payment
	PurchaseStatusCompleted PurchaseStatus = "completed" // payment verified; points credited
	PurchaseStatusFailed    PurchaseStatus = "failed"    // provider reported not settled
	PurchaseStatusRefunding PurchaseStatus = "refunding" // monetary refund in flight at the provider
	PurchaseStatusRefunded  PurchaseStatus = "refunded"  // reversed after completion
	PurchaseStatusCancelled PurchaseStatus = "cancelled" // abandoned before payment
)

// CanTransition encodes the purchase state machine:
// pending -> completed | failed | cancelled; completed -> refunding -> refunded.
// refunding -> completed is the handback when the provider rejects the refund.
func (s PurchaseStatus) CanTransition(to PurchaseStatus) bool {
	switch s {
	case PurchaseStatusPending:
		return to == PurchaseStatusCompleted || to == PurchaseStatusFailed || to == PurchaseStatusCancelled
	case PurchaseStatusCompleted:
		return to == PurchaseStatusRefunding
	case PurchaseStatusRefunding:
		return to == PurchaseStatusRefunded || to == PurchaseStatusCompleted
	case PurchaseStatusFailed, PurchaseStatusRefunded, PurchaseStatusCancelled:
		return false
	}
	return false
}

// Purchase links a user to a package checkout. Amounts are frozen at creation
// time; the external payment reference is set once the gateway accepts the
// payment request.
type Purchase struct {
	ID         string // UUID
	UserID     string
	PackageID  string
	Points     int64
	Price      decimal.Decimal
	Discount   decimal.Decimal
	VAT        decimal.Decimal
	Total      decimal.Decimal
	Currency   string
	PromoCode  *string
	Status     PurchaseStatus
	PaymentRef string // provider authority/intent id
	GatewayTx  string // provider settlement id after verification
	Meta       map[string]interface{}
	CreatedAt  time.Time
	UpdatedAt  time.Time
	PaidAt     *time.Time
	RefundedAt *time.Time
}

// Transition mutates Status if the state machine allows it.
func (p *Purchase) Transition(to PurchaseStatus) error {
	if !p.Status.CanTransition(to) {
		return domain.ErrInvalidTransition
	}
	p.Status = to
	return nil
}
