//go:build !integration

package web

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/usecase"
)

// --- Mock Use Cases ---
//
// Each mock embeds the interface for forward compatibility and overrides only
// the methods a given test wires up via the Fn fields. Calling an unwired
// method panics, which is exactly what we want in a handler test.

type mockPointsUC struct {
	usecase.PointsUseCase
	ConsumeFn     func(ctx context.Context, userID string, service model.ServiceID, referenceID string, meta map[string]interface{}) (*model.Transaction, error)
	BalanceFn     func(ctx context.Context, userID string) (*model.PointAccount, error)
	HistoryFn     func(ctx context.Context, userID string, f repository.TransactionFilter, limit, offset int) ([]*model.Transaction, error)
	AdminCreditFn func(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error)
	AdminDebitFn  func(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error)
}

func (m *mockPointsUC) Consume(ctx context.Context, userID string, service model.ServiceID, referenceID string, meta map[string]interface{}) (*model.Transaction, error) {
	return m.ConsumeFn(ctx, userID, service, referenceID, meta)
}

func (m *mockPointsUC) Balance(ctx context.Context, userID string) (*model.PointAccount, error) {
	return m.BalanceFn(ctx, userID)
}

func (m *mockPointsUC) History(ctx context.Context, userID string, f repository.TransactionFilter, limit, offset int) ([]*model.Transaction, error) {
	return m.HistoryFn(ctx, userID, f, limit, offset)
}

func (m *mockPointsUC) AdminCredit(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error) {
	return m.AdminCreditFn(ctx, userID, amount, reason, actorID)
}

func (m *mockPointsUC) AdminDebit(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error) {
	return m.AdminDebitFn(ctx, userID, amount, reason, actorID)
}

type mockPurchaseUC struct {
	usecase.PurchaseUseCase
	InitiateFn     func(ctx context.Context, userID, packageID, promoCode string) (*usecase.InitiateResult, error)
	ConfirmFn      func(ctx context.Context, purchaseID string) (*model.Purchase, error)
	ConfirmByRefFn func(ctx context.Context, paymentRef string) (*model.Purchase, error)
	RefundFn       func(ctx context.Context, purchaseID string, amount decimal.Decimal, reason string) (*model.Purchase, error)
	RevenueFn      func(ctx context.Context, period string) (decimal.Decimal, error)
}

func (m *mockPurchaseUC) Initiate(ctx context.Context, userID, packageID, promoCode string) (*usecase.InitiateResult, error) {
	return m.InitiateFn(ctx, userID, packageID, promoCode)
}

func (m *mockPurchaseUC) Confirm(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	return m.ConfirmFn(ctx, purchaseID)
}

func (m *mockPurchaseUC) ConfirmByRef(ctx context.Context, paymentRef string) (*model.Purchase, error) {
	return m.ConfirmByRefFn(ctx, paymentRef)
}

func (m *mockPurchaseUC) Refund(ctx context.Context, purchaseID string, amount decimal.Decimal, reason string) (*model.Purchase, error) {
	return m.RefundFn(ctx, purchaseID, amount, reason)
}

func (m *mockPurchaseUC) Revenue(ctx context.Context, period string) (decimal.Decimal, error) {
	return m.RevenueFn(ctx, period)
}

type mockPromoUC struct {
	usecase.PromoUseCase
	ValidateFn func(ctx context.Context, code, userID, packageID string, subtotal decimal.Decimal) (*usecase.Discount, error)
}

func (m *mockPromoUC) Validate(ctx context.Context, code, userID, packageID string, subtotal decimal.Decimal) (*usecase.Discount, error) {
	return m.ValidateFn(ctx, code, userID, packageID, subtotal)
}

type mockSubUC struct {
	usecase.SubscriptionUseCase
	SubscribeFn func(ctx context.Context, userID, packageID string) (*model.Subscription, error)
	GetActiveFn func(ctx context.Context, userID string) (*model.Subscription, error)
	CancelFn    func(ctx context.Context, subscriptionID string) error
}

func (m *mockSubUC) Subscribe(ctx context.Context, userID, packageID string) (*model.Subscription, error) {
	return m.SubscribeFn(ctx, userID, packageID)
}

func (m *mockSubUC) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	return m.GetActiveFn(ctx, userID)
}

func (m *mockSubUC) Cancel(ctx context.Context, subscriptionID string) error {
	return m.CancelFn(ctx, subscriptionID)
}

type mockPackageRepo struct {
	repository.PackageRepository
	packages []*model.PointPackage
}

func (m *mockPackageRepo) ListActive(ctx context.Context, qx repository.Tx) ([]*model.PointPackage, error) {
	return m.packages, nil
}

// --- Mock Locker ---

type mockLocker struct {
	lockErr error
	locked  []string
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.lockErr != nil {
		return "", m.lockErr
	}
	m.locked = append(m.locked, key)
	return "token", nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error { return nil }
