package model

import "time"

// PointAccount is the derived balance projection for one user. It is mutated
// exclusively through ledger transactions; the latest transaction's
// BalanceAfter must always equal Balance.
type PointAccount struct {
	UserID           string
	Balance          int64
	MonthlyAllotment int64
	MonthlyUsed      int64
	TotalPurchased   int64
	TotalSpent       int64
	TotalRefunded    int64
	TotalBonus       int64
	NextResetAt      time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableMonthly returns how much of the monthly allotment remains.
func (a *PointAccount) AvailableMonthly() int64 {
	if a.MonthlyAllotment <= a.MonthlyUsed {
		return 0
	}
	return a.MonthlyAllotment - a.MonthlyUsed
}

// NewPointAccount builds a fresh zero-balance account. The monthly reset is
// anchored one month after creation.
func NewPointAccount(userID string, now time.Time) *PointAccount {
	return &PointAccount{
		UserID:      userID,
		NextResetAt: now.AddDate(0, 1, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
