package model

import (
	"time"

	"github.com/storeseo/pointsledger/internal/domain"
)

type TransactionKind string

const (
	TransactionKindPurchase    TransactionKind = "purchase"
	TransactionKindDeduct      TransactionKind = "deduct"
	TransactionKindRefund      TransactionKind = "refund"
	TransactionKindBonus       TransactionKind = "bonus"
	TransactionKindTransfer    TransactionKind = "transfer"
	TransactionKindExpired     TransactionKind = "expired"
	TransactionKindAdminCredit TransactionKind = "admin_credit"
	TransactionKindAdminDebit  TransactionKind = "admin_debit"
)

// Valid reports whether k is one of the closed set of kinds. New kinds must be
// added here and at every exhaustive switch over TransactionKind.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindPurchase, TransactionKindDeduct, TransactionKindRefund,
		TransactionKindBonus, TransactionKindTransfer, TransactionKindExpired,
		TransactionKindAdminCredit, TransactionKindAdminDebit:
		return true
	}
	return false
}

// Credit reports whether the kind normally carries a positive amount.
// Refund is a debit here: it claws granted points back out of the balance.
func (k TransactionKind) Credit() bool {
	switch k {
	case TransactionKindPurchase, TransactionKindBonus, TransactionKindAdminCredit:
		return true
	case TransactionKindDeduct, TransactionKindRefund, TransactionKindTransfer,
		TransactionKindExpired, TransactionKindAdminDebit:
		return false
	}
	return false
}

// Transaction is one immutable entry of the append-only ledger. Corrections
// are new reversing transactions, never edits.
type Transaction struct {
	ID            string // ULID, lexicographically time-ordered
	UserID        string
	Kind          TransactionKind
	Amount        int64 // signed: positive=credit, negative=debit
	BalanceBefore int64
	BalanceAfter  int64
	RefKind       string // e.g. "service", "purchase", "subscription", "admin"
	RefID         string
	Description   string
	Meta          map[string]interface{}
	CreatedAt     time.Time
	ExpiresAt     *time.Time
}

// Reference renders the reference pair as stored, e.g. "purchase:42".
func (t *Transaction) Reference() string {
	if t.RefKind == "" {
		return t.RefID
	}
	return t.RefKind + ":" + t.RefID
}

// Validate checks the ledger invariant on a single row.
func (t *Transaction) Validate() error {
	if t.ID == "" || t.UserID == "" || !t.Kind.Valid() {
		return domain.ErrInvalidArgument
	}
	if t.BalanceAfter != t.BalanceBefore+t.Amount {
		return domain.ErrInvalidArgument
	}
	if t.BalanceAfter < 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}
