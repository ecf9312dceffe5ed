package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/infra/metrics"
)

// Discount is the outcome of a successful promo validation.
type Discount struct {
	Code   string
	Amount decimal.Decimal
}

// PromoUseCase validates and applies promotional discounts. Validation only
// reads; the usage counter is incremented by Apply, inside the purchase
// completion transaction, so abandoned carts never burn uses.
type PromoUseCase interface {
	Validate(ctx context.Context, code, userID, packageID string, subtotal decimal.Decimal) (*Discount, error)

	// Apply increments times_used atomically. Must only be called from the
	// purchase coordinator while completing a purchase.
	Apply(ctx context.Context, qx repository.Tx, code, userID, purchaseID string) error
}

var _ PromoUseCase = (*promoUC)(nil)

type promoUC struct {
	promos repository.PromoRepository
	log    *zerolog.Logger
	now    func() time.Time
}

func NewPromoUseCase(promos repository.PromoRepository, logger *zerolog.Logger) *promoUC {
	return &promoUC{promos: promos, log: logger, now: time.Now}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (u *promoUC) Validate(ctx context.Context, code, userID, packageID string, subtotal decimal.Decimal) (*Discount, error) {
	c := normalizeCode(code)
	if c == "" {
		return nil, &domain.PromoInvalidError{Code: code, Reason: domain.PromoNotFound}
	}
	p, err := u.promos.FindByCode(ctx, repository.NoTX, c)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoNotFound}
		}
		return nil, err
	}
	now := u.now()
	switch {
	case !p.Active:
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoInactive}
	case now.Before(p.ValidFrom):
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoNotStarted}
	case now.After(p.ValidUntil):
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoExpired}
	case p.TimesUsed >= p.MaxUses:
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoExhausted}
	case subtotal.LessThan(p.MinPurchase):
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoBelowMinimum}
	case !p.AllowsPackage(packageID):
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoWrongPackage}
	}
	used, err := u.promos.CountRedemptionsByUser(ctx, repository.NoTX, c, userID)
	if err != nil {
		return nil, err
	}
	if used >= p.MaxUsesPerUser {
		return nil, &domain.PromoInvalidError{Code: c, Reason: domain.PromoUserExhausted}
	}
	return &Discount{Code: c, Amount: p.DiscountFor(subtotal)}, nil
}

func (u *promoUC) Apply(ctx context.Context, qx repository.Tx, code, userID, purchaseID string) error {
	c := normalizeCode(code)
	if err := u.promos.Apply(ctx, qx, c, userID, purchaseID); err != nil {
		metrics.IncPromoRedemption("rejected")
		return err
	}
	metrics.IncPromoRedemption("applied")
	u.log.Info().Str("code", c).Str("user_id", userID).
		Str("purchase_id", purchaseID).Msg("promo code applied")
	return nil
}
