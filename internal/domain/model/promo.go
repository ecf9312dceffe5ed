package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a stateful discount. TimesUsed <= MaxUses must hold after any
// successful application; the increment is a conditional update tied to
// purchase completion, never to checkout initiation.
type PromoCode struct {
	ID              string // UUID
	Code            string // unique, uppercased
	Type            DiscountType
	Value           decimal.Decimal // percent (0..100] or fixed amount
	MaxDiscount     decimal.Decimal // zero = uncapped; percentage type only
	MinPurchase     decimal.Decimal
	MaxUses         int
	MaxUsesPerUser  int
	AllowedPackages []string // empty = any package
	ValidFrom       time.Time
	ValidUntil      time.Time
	TimesUsed       int
	Active          bool
	CreatedAt       time.Time
}

// AllowsPackage reports whether the code is redeemable against packageID.
func (p *PromoCode) AllowsPackage(packageID string) bool {
	if len(p.AllowedPackages) == 0 {
		return true
	}
	for _, id := range p.AllowedPackages {
		if id == packageID {
			return true
		}
	}
	return false
}

// DiscountFor computes the discount for a subtotal. Percentage discounts are
// capped at MaxDiscount (when set); no discount ever exceeds the subtotal.
// All math is fixed-point decimal.
func (p *PromoCode) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch p.Type {
	case DiscountPercentage:
		d = subtotal.Mul(p.Value).Div(decimal.NewFromInt(100))
		if p.MaxDiscount.IsPositive() && d.GreaterThan(p.MaxDiscount) {
			d = p.MaxDiscount
		}
	case DiscountFixed:
		d = p.Value
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(2)
}

// NewPromoCode validates and constructs a promo code.
func NewPromoCode(id, code string, typ DiscountType, value decimal.Decimal, maxUses, maxUsesPerUser int, validFrom, validUntil time.Time) (*PromoCode, error) {
	if id == "" || code == "" || maxUses <= 0 || maxUsesPerUser <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch typ {
	case DiscountPercentage:
		if value.LessThanOrEqual(decimal.Zero) || value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, domain.ErrInvalidArgument
		}
	case DiscountFixed:
		if value.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrInvalidArgument
		}
	default:
		return nil, domain.ErrInvalidArgument
	}
	if !validUntil.After(validFrom) {
		return nil, domain.ErrInvalidArgument
	}
	return &PromoCode{
		ID:             id,
		Code:           code,
		Type:           typ,
		Value:          value,
		MaxUses:        maxUses,
		MaxUsesPerUser: maxUsesPerUser,
		ValidFrom:      validFrom,
		ValidUntil:     validUntil,
		Active:         true,
		CreatedAt:      time.Now(),
	}, nil
}
