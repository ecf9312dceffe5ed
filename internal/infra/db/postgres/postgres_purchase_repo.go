package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseCols = `id, user_id, package_id, points, price, discount, vat, total, currency, promo_code, status, payment_ref, gateway_tx, meta, created_at, updated_at, paid_at, refunded_at`

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	p := &model.Purchase{}
	if err := row.Scan(&p.ID, &p.UserID, &p.PackageID, &p.Points, &p.Price, &p.Discount,
		&p.VAT, &p.Total, &p.Currency, &p.PromoCode, &p.Status, &p.PaymentRef,
		&p.GatewayTx, &p.Meta, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt, &p.RefundedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *purchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	const q = `
INSERT INTO purchases (` + purchaseCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  status=$11, payment_ref=$12, gateway_tx=$13, meta=$14, updated_at=$16, paid_at=$17, refunded_at=$18;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.PackageID, p.Points, p.Price,
		p.Discount, p.VAT, p.Total, p.Currency, p.PromoCode, p.Status, p.PaymentRef,
		p.GatewayTx, p.Meta, p.CreatedAt, p.UpdatedAt, p.PaidAt, p.RefundedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE id=$1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	q += `;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) FindByPaymentRef(ctx context.Context, tx repository.Tx, ref string) (*model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases WHERE payment_ref=$1 LIMIT 1`
	if inTx(tx) {
		q += ` FOR UPDATE`
	}
	q += `;`
	row, err := pickRow(ctx, r.pool, tx, q, ref)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

// UpdateStatus is the idempotency gate: the row moves from->to at most once,
// no matter how many confirmations arrive.
func (r *purchaseRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.PurchaseStatus, gatewayTx string, at time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, domain.ErrInvalidTransition
	}
	q := `UPDATE purchases SET status=$3, updated_at=$4`
	args := []interface{}{id, from, to, at}
	if gatewayTx != "" {
		args = append(args, gatewayTx)
		q += `, gateway_tx=$` + itoa(len(args))
	}
	switch {
	case to == model.PurchaseStatusCompleted && from == model.PurchaseStatusPending:
		// refunding -> completed is a revert; keep the original paid_at
		q += `, paid_at=$4`
	case to == model.PurchaseStatusRefunded:
		q += `, refunded_at=$4`
	}
	q += ` WHERE id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit, offset int) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseCols + ` FROM purchases WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit, offset)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectPurchases(rows)
}

func (r *purchaseRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + purchaseCols + ` FROM purchases WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	return collectPurchases(rows)
}

func collectPurchases(rows pgx.Rows) ([]*model.Purchase, error) {
	var out []*model.Purchase
	for rows.Next() {
		p := &model.Purchase{}
		if err := rows.Scan(&p.ID, &p.UserID, &p.PackageID, &p.Points, &p.Price, &p.Discount,
			&p.VAT, &p.Total, &p.Currency, &p.PromoCode, &p.Status, &p.PaymentRef,
			&p.GatewayTx, &p.Meta, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt, &p.RefundedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *purchaseRepo) SumRevenueByPeriod(ctx context.Context, tx repository.Tx, period string) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(SUM(total),0) FROM purchases WHERE status='completed' AND paid_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
