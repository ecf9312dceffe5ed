package repository

import (
	"context"

	"github.com/storeseo/pointsledger/internal/domain/model"
)

// PromoRepository stores promo codes and their redemptions.
type PromoRepository interface {
	FindByCode(ctx context.Context, qx Tx, code string) (*model.PromoCode, error)
	Save(ctx context.Context, qx Tx, p *model.PromoCode) error
	CountRedemptionsByUser(ctx context.Context, qx Tx, code, userID string) (int, error)

	// Apply atomically increments times_used (guarded by times_used < max_uses)
	// and records the redemption row. Returns domain.PromoInvalidError with
	// reason exhausted when the cap was hit by a concurrent redemption.
	Apply(ctx context.Context, qx Tx, code, userID, purchaseID string) error
}
