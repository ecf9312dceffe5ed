package repository

import (
	"context"
	"time"

	"github.com/storeseo/pointsledger/internal/domain/model"
)

// SubscriptionRepository is the port for monthly point subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, qx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Subscription, error)
	FindActiveByUser(ctx context.Context, qx Tx, userID string) (*model.Subscription, error)
	ListDue(ctx context.Context, qx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	UpdateStatus(ctx context.Context, qx Tx, id string, status model.SubscriptionStatus) error

	// AdvancePeriod persists new period bounds only while the stored
	// next_billing_at is still <= now; returns whether this caller won.
	// Redundant sweep and lazy triggers therefore advance a period once.
	AdvancePeriod(ctx context.Context, qx Tx, id string, now, newStart, newEnd, newNext time.Time) (bool, error)
}
