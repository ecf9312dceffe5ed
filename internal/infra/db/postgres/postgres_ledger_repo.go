package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

var _ repository.LedgerRepository = (*ledgerRepo)(nil)

// ledgerRepo persists the append-only transaction log and the balance
// projection. Tables:
//
//	point_accounts(user_id PK, balance, monthly_allotment, monthly_used,
//	  total_purchased, total_spent, total_refunded, total_bonus,
//	  next_reset_at, created_at, updated_at)
//	point_transactions(id PK, user_id, kind, amount, balance_before,
//	  balance_after, ref_kind, ref_id, description, meta JSONB,
//	  created_at, expires_at)
type ledgerRepo struct{ pool *pgxpool.Pool }

func NewLedgerRepo(pool *pgxpool.Pool) *ledgerRepo {
	return &ledgerRepo{pool: pool}
}

const accountCols = `user_id, balance, monthly_allotment, monthly_used, total_purchased, total_spent, total_refunded, total_bonus, next_reset_at, created_at, updated_at`

func scanAccount(row pgx.Row) (*model.PointAccount, error) {
	a := &model.PointAccount{}
	if err := row.Scan(&a.UserID, &a.Balance, &a.MonthlyAllotment, &a.MonthlyUsed,
		&a.TotalPurchased, &a.TotalSpent, &a.TotalRefunded, &a.TotalBonus,
		&a.NextResetAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

func (r *ledgerRepo) CreateIfAbsent(ctx context.Context, tx repository.Tx, userID string) (*model.PointAccount, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	acct := model.NewPointAccount(userID, time.Now())
	const q = `
INSERT INTO point_accounts (` + accountCols + `)
VALUES ($1,0,0,0,0,0,0,0,$2,$3,$3)
ON CONFLICT (user_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, q, userID, acct.NextResetAt, acct.CreatedAt); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	return r.Find(ctx, tx, userID)
}

func (r *ledgerRepo) Find(ctx context.Context, tx repository.Tx, userID string) (*model.PointAccount, error) {
	q := `SELECT ` + accountCols + ` FROM point_accounts WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanAccount(row)
}

// Append is the single balance-mutation primitive. When called outside a
// transaction it opens its own; either way the account row is locked, the
// invariant checked, the transaction row inserted and the projection updated
// as one atomic unit. Exactly one row is persisted per successful call.
func (r *ledgerRepo) Append(ctx context.Context, qx repository.Tx, userID string, e repository.LedgerEntry) (*model.Transaction, error) {
	if tx, ok := qx.(pgx.Tx); ok {
		return r.appendIn(ctx, tx, userID, e)
	}
	var out *model.Transaction
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		t, err := r.appendIn(ctx, tx, userID, e)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepo) appendIn(ctx context.Context, tx pgx.Tx, userID string, e repository.LedgerEntry) (*model.Transaction, error) {
	if userID == "" || !e.Kind.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	row := tx.QueryRow(ctx, `SELECT `+accountCols+` FROM point_accounts WHERE user_id=$1 FOR UPDATE;`, userID)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, err
	}

	after := acct.Balance + e.Amount
	if after < 0 {
		return nil, &domain.InsufficientBalanceError{Required: -e.Amount, Available: acct.Balance}
	}

	now := time.Now()
	t := &model.Transaction{
		ID:            ulid.Make().String(),
		UserID:        userID,
		Kind:          e.Kind,
		Amount:        e.Amount,
		BalanceBefore: acct.Balance,
		BalanceAfter:  after,
		RefKind:       e.RefKind,
		RefID:         e.RefID,
		Description:   e.Description,
		Meta:          e.Meta,
		CreatedAt:     now,
		ExpiresAt:     e.ExpiresAt,
	}
	const ins = `
INSERT INTO point_transactions (id, user_id, kind, amount, balance_before, balance_after, ref_kind, ref_id, description, meta, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	if _, err := tx.Exec(ctx, ins, t.ID, t.UserID, t.Kind, t.Amount, t.BalanceBefore,
		t.BalanceAfter, t.RefKind, t.RefID, t.Description, t.Meta, t.CreatedAt, t.ExpiresAt); err != nil {
		return nil, domain.ErrOperationFailed
	}

	var purchased, spent, refunded, bonus, monthlyUsed int64
	switch e.Kind {
	case model.TransactionKindPurchase:
		purchased = e.Amount
	case model.TransactionKindBonus, model.TransactionKindAdminCredit:
		bonus = e.Amount
	case model.TransactionKindDeduct:
		spent = -e.Amount
		monthlyUsed = -e.Amount
	case model.TransactionKindAdminDebit, model.TransactionKindTransfer, model.TransactionKindExpired:
		spent = -e.Amount
	case model.TransactionKindRefund:
		refunded = -e.Amount
	}
	const upd = `
UPDATE point_accounts SET
  balance=$2,
  total_purchased=total_purchased+$3,
  total_spent=total_spent+$4,
  total_refunded=total_refunded+$5,
  total_bonus=total_bonus+$6,
  monthly_used=monthly_used+$7,
  updated_at=$8
WHERE user_id=$1;`
	if _, err := tx.Exec(ctx, upd, userID, after, purchased, spent, refunded, bonus, monthlyUsed, now); err != nil {
		return nil, domain.ErrOperationFailed
	}
	return t, nil
}

func (r *ledgerRepo) History(ctx context.Context, tx repository.Tx, userID string, f repository.TransactionFilter, limit, offset int) ([]*model.Transaction, error) {
	q := `SELECT id, user_id, kind, amount, balance_before, balance_after, ref_kind, ref_id, description, meta, created_at, expires_at
FROM point_transactions WHERE user_id=$1`
	args := []interface{}{userID}
	if f.Kind != "" {
		args = append(args, f.Kind)
		q += ` AND kind=$` + itoa(len(args))
	}
	if f.RefKind != "" {
		args = append(args, f.RefKind)
		q += ` AND ref_kind=$` + itoa(len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		q += ` AND created_at >= $` + itoa(len(args))
	}
	if !f.Until.IsZero() {
		args = append(args, f.Until)
		q += ` AND created_at < $` + itoa(len(args))
	}
	args = append(args, limit)
	q += ` ORDER BY id DESC LIMIT $` + itoa(len(args))
	args = append(args, offset)
	q += ` OFFSET $` + itoa(len(args)) + `;`

	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t := &model.Transaction{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.BalanceBefore,
			&t.BalanceAfter, &t.RefKind, &t.RefID, &t.Description, &t.Meta,
			&t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *ledgerRepo) ResetMonthly(ctx context.Context, tx repository.Tx, userID string, now, next time.Time) (bool, error) {
	const q = `
UPDATE point_accounts SET monthly_used=0, next_reset_at=$3, updated_at=$2
WHERE user_id=$1 AND next_reset_at <= $2;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, now, next)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ledgerRepo) SetMonthlyAllotment(ctx context.Context, tx repository.Tx, userID string, points int64) error {
	const q = `UPDATE point_accounts SET monthly_allotment=$2, updated_at=NOW() WHERE user_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, points)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
