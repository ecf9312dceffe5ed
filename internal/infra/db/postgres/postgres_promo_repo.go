package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

var _ repository.PromoRepository = (*promoRepo)(nil)

type promoRepo struct{ pool *pgxpool.Pool }

func NewPromoRepo(pool *pgxpool.Pool) *promoRepo {
	return &promoRepo{pool: pool}
}

const promoCols = `id, code, type, value, max_discount, min_purchase, max_uses, max_uses_per_user, allowed_packages, valid_from, valid_until, times_used, active, created_at`

func (r *promoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	const q = `SELECT ` + promoCols + ` FROM promo_codes WHERE code=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	p := &model.PromoCode{}
	if err := row.Scan(&p.ID, &p.Code, &p.Type, &p.Value, &p.MaxDiscount, &p.MinPurchase,
		&p.MaxUses, &p.MaxUsesPerUser, &p.AllowedPackages, &p.ValidFrom, &p.ValidUntil,
		&p.TimesUsed, &p.Active, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *promoRepo) Save(ctx context.Context, tx repository.Tx, p *model.PromoCode) error {
	const q = `
INSERT INTO promo_codes (` + promoCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (code) DO UPDATE SET
  type=$3, value=$4, max_discount=$5, min_purchase=$6, max_uses=$7,
  max_uses_per_user=$8, allowed_packages=$9, valid_from=$10, valid_until=$11, active=$13;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Code, p.Type, p.Value, p.MaxDiscount,
		p.MinPurchase, p.MaxUses, p.MaxUsesPerUser, p.AllowedPackages, p.ValidFrom,
		p.ValidUntil, p.TimesUsed, p.Active, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *promoRepo) CountRedemptionsByUser(ctx context.Context, tx repository.Tx, code, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM promo_redemptions WHERE code=$1 AND user_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, code, userID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

// Apply is the atomic cap check: the guarded increment means M concurrent
// redemptions against k remaining uses succeed exactly k times. The increment
// also locks the promo row, which serializes the per-user guard below across
// transactions applying the same code.
func (r *promoRepo) Apply(ctx context.Context, tx repository.Tx, code, userID, purchaseID string) error {
	const inc = `
UPDATE promo_codes SET times_used = times_used + 1
WHERE code=$1 AND active AND times_used < max_uses;`
	tag, err := execSQL(ctx, r.pool, tx, inc, code)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return &domain.PromoInvalidError{Code: code, Reason: domain.PromoExhausted}
	}
	const ins = `
INSERT INTO promo_redemptions (code, user_id, purchase_id, created_at)
SELECT $1, $2, $3, NOW() FROM promo_codes c
WHERE c.code=$1
  AND (SELECT COUNT(*) FROM promo_redemptions r WHERE r.code=$1 AND r.user_id=$2) < c.max_uses_per_user;`
	tag, err = execSQL(ctx, r.pool, tx, ins, code, userID, purchaseID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return &domain.PromoInvalidError{Code: code, Reason: domain.PromoUserExhausted}
	}
	return nil
}
