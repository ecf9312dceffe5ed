package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain/model"
)

// PurchaseRepository stores checkout records. FindByID issues a row lock when
// called inside a transaction, so the coordinator can gate status transitions
// against concurrent confirmations.
type PurchaseRepository interface {
	Save(ctx context.Context, qx Tx, p *model.Purchase) error
	FindByID(ctx context.Context, qx Tx, id string) (*model.Purchase, error)
	FindByPaymentRef(ctx context.Context, qx Tx, ref string) (*model.Purchase, error)
	// UpdateStatus transitions a purchase only when its current status matches
	// from; returns whether a row was updated. This is the idempotency gate
	// for at-least-once confirmation delivery.
	UpdateStatus(ctx context.Context, qx Tx, id string, from, to model.PurchaseStatus, gatewayTx string, at time.Time) (bool, error)
	ListByUser(ctx context.Context, qx Tx, userID string, limit, offset int) ([]*model.Purchase, error)
	ListPendingOlderThan(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.Purchase, error)
	SumRevenueByPeriod(ctx context.Context, qx Tx, period string) (decimal.Decimal, error)
}
