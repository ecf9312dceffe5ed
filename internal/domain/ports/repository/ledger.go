package repository

import (
	"context"
	"time"

	"github.com/storeseo/pointsledger/internal/domain/model"
)

// LedgerEntry is the input to Append. Amount is signed: positive=credit,
// negative=debit.
type LedgerEntry struct {
	Kind        model.TransactionKind
	Amount      int64
	RefKind     string
	RefID       string
	Description string
	Meta        map[string]interface{}
	ExpiresAt   *time.Time
}

// TransactionFilter narrows History reads.
type TransactionFilter struct {
	Kind    model.TransactionKind // zero value = all kinds
	RefKind string
	Since   time.Time
	Until   time.Time
}

// LedgerRepository is the port for the append-only transaction log and its
// balance projection.
//
// Append is the ONLY balance mutation primitive in the system. An
// implementation must execute balance-read, invariant-check,
// transaction-insert and balance-update as one atomic unit scoped to the
// account row. A debit that would drive the balance below zero fails with
// domain.InsufficientBalanceError and applies nothing. Exactly one
// transaction row is persisted per successful call; retry policy lives in
// callers.
type LedgerRepository interface {
	// CreateIfAbsent lazily initializes the account. Idempotent.
	CreateIfAbsent(ctx context.Context, qx Tx, userID string) (*model.PointAccount, error)
	Find(ctx context.Context, qx Tx, userID string) (*model.PointAccount, error)

	Append(ctx context.Context, qx Tx, userID string, e LedgerEntry) (*model.Transaction, error)

	History(ctx context.Context, qx Tx, userID string, f TransactionFilter, limit, offset int) ([]*model.Transaction, error)

	// ResetMonthly performs the atomic conditional monthly reset: it zeroes
	// monthly_used and advances next_reset_at to next, but only when the
	// stored next_reset_at is <= now. Returns whether this caller won the
	// update; concurrent invocations see exactly one winner per period.
	ResetMonthly(ctx context.Context, qx Tx, userID string, now, next time.Time) (bool, error)

	// SetMonthlyAllotment replaces the account's monthly allotment (set when a
	// subscription starts or ends).
	SetMonthlyAllotment(ctx context.Context, qx Tx, userID string, points int64) error
}
