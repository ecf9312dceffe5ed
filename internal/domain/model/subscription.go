package model

import (
	"time"

	"github.com/storeseo/pointsledger/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription drives the monthly point grant for one user.
type Subscription struct {
	ID            string // UUID
	UserID        string
	PackageID     string
	MonthlyPoints int64
	Status        SubscriptionStatus
	PeriodStart   time.Time
	PeriodEnd     time.Time
	NextBillingAt time.Time
	AutoRenew     bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSubscription starts an active monthly subscription from now.
func NewSubscription(id, userID string, pkg *PointPackage, now time.Time) (*Subscription, error) {
	if id == "" || userID == "" || pkg.IsZero() || !pkg.Subscription {
		return nil, domain.ErrInvalidArgument
	}
	end := now.AddDate(0, 1, 0)
	return &Subscription{
		ID:            id,
		UserID:        userID,
		PackageID:     pkg.ID,
		MonthlyPoints: pkg.Points,
		Status:        SubscriptionStatusActive,
		PeriodStart:   now,
		PeriodEnd:     end,
		NextBillingAt: end,
		AutoRenew:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Advance moves the billing period forward until NextBillingAt is in the
// future relative to now. Catches up multiple missed periods in one call.
func (s *Subscription) Advance(now time.Time) {
	for !s.NextBillingAt.After(now) {
		s.PeriodStart = s.NextBillingAt
		s.PeriodEnd = s.PeriodStart.AddDate(0, 1, 0)
		s.NextBillingAt = s.PeriodEnd
	}
	s.UpdatedAt = now
}
