//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

type purchaseUCTestDeps struct {
	purchases *memPurchaseRepo
	packages  *memPackageRepo
	ledger    *memLedgerRepo
	promos    *memPromoRepo
	subs      *memSubRepo
	prices    *memPriceRepo
	gateway   *mockGateway
	tm        *mockTxManager
}

func newPurchaseUCDeps() (*purchaseUC, *purchaseUCTestDeps) {
	deps := &purchaseUCTestDeps{
		purchases: newMemPurchaseRepo(),
		packages:  newMemPackageRepo(),
		ledger:    newMemLedgerRepo(),
		promos:    newMemPromoRepo(),
		subs:      newMemSubRepo(),
		prices:    newMemPriceRepo(),
		gateway:   newMockGateway(),
		tm:        &mockTxManager{},
	}
	pricing := NewPricingUseCase(deps.prices, newTestLogger())
	points := NewPointsUseCase(deps.ledger, deps.subs, pricing, deps.tm, newTestLogger())
	promo := NewPromoUseCase(deps.promos, newTestLogger())
	uc := NewPurchaseUseCase(deps.purchases, deps.packages, deps.ledger, points, promo,
		deps.gateway, deps.tm, decimal.RequireFromString("0.09"), "USD",
		"https://api.example/callback", newTestLogger())
	return uc, deps
}

func seedPackage(t *testing.T, deps *purchaseUCTestDeps, id string, points int64, price string) *model.PointPackage {
	t.Helper()
	pkg, err := model.NewPointPackage(id, id, points, decimal.RequireFromString(price), "USD", false)
	if err != nil {
		t.Fatalf("seed package: %v", err)
	}
	if err := deps.packages.Save(context.Background(), repository.NoTX, pkg); err != nil {
		t.Fatalf("seed package: %v", err)
	}
	return pkg
}

func TestPurchaseUseCase_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("should create a pending purchase with VAT applied", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")

		res, err := uc.Initiate(ctx, "user-1", "pro", "")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		p := res.Purchase
		if p.Status != model.PurchaseStatusPending {
			t.Errorf("expected pending, got %s", p.Status)
		}
		// 24.99 * 0.09 = 2.2491 -> 2.25; total 27.24
		if !p.VAT.Equal(decimal.RequireFromString("2.25")) {
			t.Errorf("expected VAT 2.25, got %s", p.VAT)
		}
		if !p.Total.Equal(decimal.RequireFromString("27.24")) {
			t.Errorf("expected total 27.24, got %s", p.Total)
		}
		if res.PayURL == "" || res.PaymentRef == "" {
			t.Error("expected pay URL and payment ref")
		}
		if got := deps.ledger.balance("user-1"); got != 0 {
			t.Errorf("no points before settlement, got %d", got)
		}
	})

	t.Run("should apply a validated promo discount", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		_ = deps.promos.Save(ctx, repository.NoTX, &model.PromoCode{
			ID: "pc-1", Code: "SAVE20", Type: model.DiscountPercentage,
			Value: decimal.NewFromInt(20), MaxUses: 10, MaxUsesPerUser: 1,
			ValidFrom: mustPast(), ValidUntil: mustFuture(), Active: true,
		})

		res, err := uc.Initiate(ctx, "user-1", "pro", "save20")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if !res.Purchase.Discount.Equal(decimal.RequireFromString("20"))  {
			t.Errorf("expected discount 20.00, got %s", res.Purchase.Discount)
		}
		// net 80.00, vat 7.20, total 87.20
		if !res.Purchase.Total.Equal(decimal.RequireFromString("87.20")) {
			t.Errorf("expected total 87.20, got %s", res.Purchase.Total)
		}
		// validation never burns a use
		if deps.promos.store["SAVE20"].TimesUsed != 0 {
			t.Error("expected times_used untouched at initiation")
		}
	})

	t.Run("should reject an inactive package", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		pkg := seedPackage(t, deps, "old", 100, "1.00")
		pkg.Active = false
		_ = deps.packages.Save(ctx, repository.NoTX, pkg)

		if _, err := uc.Initiate(ctx, "user-1", "old", ""); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("gateway failure leaves no purchase behind", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		deps.gateway.createErr = errors.New("boom")

		_, err := uc.Initiate(ctx, "user-1", "pro", "")
		if !errors.Is(err, domain.ErrPaymentGateway) {
			t.Fatalf("expected ErrPaymentGateway, got %v", err)
		}
		if len(deps.purchases.store) != 0 {
			t.Errorf("expected no purchase rows, got %d", len(deps.purchases.store))
		}
	})
}

func TestPurchaseUseCase_Confirm(t *testing.T) {
	ctx := context.Background()

	initiate := func(t *testing.T, uc *purchaseUC, deps *purchaseUCTestDeps, promo string) *model.Purchase {
		t.Helper()
		res, err := uc.Initiate(ctx, "user-1", "pro", promo)
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		return res.Purchase
	}

	t.Run("should credit points exactly once on settlement", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		p := initiate(t, uc, deps, "")

		got, err := uc.Confirm(ctx, p.ID)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Status != model.PurchaseStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.GatewayTx == "" || got.PaidAt == nil {
			t.Error("expected gateway tx and paid_at recorded")
		}
		if deps.ledger.balance("user-1") != 2000 {
			t.Errorf("expected 2000 points credited, got %d", deps.ledger.balance("user-1"))
		}

		// duplicate confirmation is a no-op
		if _, err := uc.Confirm(ctx, p.ID); err != nil {
			t.Fatalf("duplicate confirm: %v", err)
		}
		if deps.ledger.balance("user-1") != 2000 {
			t.Errorf("expected no double credit, got %d", deps.ledger.balance("user-1"))
		}
		if n := deps.ledger.countByKind("user-1", model.TransactionKindPurchase); n != 1 {
			t.Errorf("expected single purchase transaction, got %d", n)
		}
	})

	t.Run("should resolve by payment reference", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		p := initiate(t, uc, deps, "")

		got, err := uc.ConfirmByRef(ctx, p.PaymentRef)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.ID != p.ID || got.Status != model.PurchaseStatusCompleted {
			t.Errorf("expected completed purchase %s, got %+v", p.ID, got)
		}
	})

	t.Run("unsettled verification marks the purchase failed", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		p := initiate(t, uc, deps, "")
		deps.gateway.verifyOK = false

		_, err := uc.Confirm(ctx, p.ID)
		if !errors.Is(err, domain.ErrPaymentFailed) {
			t.Fatalf("expected ErrPaymentFailed, got %v", err)
		}
		stored, _ := deps.purchases.FindByID(ctx, repository.NoTX, p.ID)
		if stored.Status != model.PurchaseStatusFailed {
			t.Errorf("expected failed, got %s", stored.Status)
		}
		if deps.ledger.balance("user-1") != 0 {
			t.Error("expected no credit on failed payment")
		}

		// confirming a failed purchase is a hard error
		if _, err := uc.Confirm(ctx, p.ID); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("transport error keeps the purchase pending", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		p := initiate(t, uc, deps, "")
		deps.gateway.verifyErr = errors.New("timeout")

		_, err := uc.Confirm(ctx, p.ID)
		if !errors.Is(err, domain.ErrPaymentGateway) {
			t.Fatalf("expected ErrPaymentGateway, got %v", err)
		}
		stored, _ := deps.purchases.FindByID(ctx, repository.NoTX, p.ID)
		if stored.Status != model.PurchaseStatusPending {
			t.Errorf("expected still pending, got %s", stored.Status)
		}

		// retry after the transport recovers
		deps.gateway.verifyErr = nil
		if _, err := uc.Confirm(ctx, p.ID); err != nil {
			t.Fatalf("retry confirm: %v", err)
		}
		if deps.ledger.balance("user-1") != 2000 {
			t.Errorf("expected credit after retry, got %d", deps.ledger.balance("user-1"))
		}
	})

	t.Run("promo use is burned with the completing transaction", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		_ = deps.promos.Save(ctx, repository.NoTX, &model.PromoCode{
			ID: "pc-1", Code: "SAVE20", Type: model.DiscountFixed,
			Value: decimal.NewFromInt(5), MaxUses: 10, MaxUsesPerUser: 1,
			ValidFrom: mustPast(), ValidUntil: mustFuture(), Active: true,
		})
		p := initiate(t, uc, deps, "SAVE20")

		if _, err := uc.Confirm(ctx, p.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		if used := deps.promos.store["SAVE20"].TimesUsed; used != 1 {
			t.Errorf("expected times_used 1, got %d", used)
		}
		// duplicate confirm must not burn another use
		if _, err := uc.Confirm(ctx, p.ID); err != nil {
			t.Fatalf("duplicate confirm: %v", err)
		}
		if used := deps.promos.store["SAVE20"].TimesUsed; used != 1 {
			t.Errorf("expected times_used still 1, got %d", used)
		}
	})

	t.Run("losing the failure race reports the concurrent outcome", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		p := initiate(t, uc, deps, "")

		// the provider answers "not settled" here, but a concurrent
		// confirmation completes the purchase while the answer is in flight
		deps.gateway.verifyOK = false
		deps.gateway.verifyHook = func() {
			if _, err := deps.purchases.UpdateStatus(ctx, repository.NoTX, p.ID,
				model.PurchaseStatusPending, model.PurchaseStatusCompleted, "tx-other", time.Now()); err != nil {
				t.Errorf("complete from hook: %v", err)
			}
		}

		got, err := uc.Confirm(ctx, p.ID)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Status != model.PurchaseStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		stored, _ := deps.purchases.FindByID(ctx, repository.NoTX, p.ID)
		if stored.Status != model.PurchaseStatusCompleted {
			t.Errorf("expected stored status completed, got %s", stored.Status)
		}
	})

	t.Run("concurrent confirmations credit once", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		p := initiate(t, uc, deps, "")

		const n = 8
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = uc.Confirm(ctx, p.ID)
			}()
		}
		wg.Wait()

		if deps.ledger.balance("user-1") != 2000 {
			t.Errorf("expected exactly one credit, balance %d", deps.ledger.balance("user-1"))
		}
		if n := deps.ledger.countByKind("user-1", model.TransactionKindPurchase); n != 1 {
			t.Errorf("expected single purchase transaction, got %d", n)
		}
	})
}

func TestPurchaseUseCase_Refund(t *testing.T) {
	ctx := context.Background()

	completed := func(t *testing.T, uc *purchaseUC, deps *purchaseUCTestDeps) *model.Purchase {
		t.Helper()
		res, err := uc.Initiate(ctx, "user-1", "pro", "")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		p, err := uc.Confirm(ctx, res.Purchase.ID)
		if err != nil {
			t.Fatalf("confirm: %v", err)
		}
		return p
	}

	t.Run("full refund claws back all points", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)

		got, err := uc.Refund(ctx, p.ID, decimal.Zero, "requested by user")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if got.Status != model.PurchaseStatusRefunded || got.RefundedAt == nil {
			t.Errorf("expected refunded, got %+v", got)
		}
		if deps.ledger.balance("user-1") != 0 {
			t.Errorf("expected balance 0 after clawback, got %d", deps.ledger.balance("user-1"))
		}
		if deps.gateway.refundCalls != 1 {
			t.Errorf("expected one gateway refund, got %d", deps.gateway.refundCalls)
		}
	})

	t.Run("clawback is capped at the remaining balance", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)

		// user spends most of the points before refunding
		points := NewPointsUseCase(deps.ledger, deps.subs,
			NewPricingUseCase(deps.prices, newTestLogger()), deps.tm, newTestLogger())
		if _, err := points.AdminDebit(ctx, "user-1", 1700, "spend", "admin-1"); err != nil {
			t.Fatalf("spend: %v", err)
		}

		if _, err := uc.Refund(ctx, p.ID, decimal.Zero, "buyer remorse"); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if deps.ledger.balance("user-1") != 0 {
			t.Errorf("expected balance clamped to 0, got %d", deps.ledger.balance("user-1"))
		}
		hist, _ := deps.ledger.History(ctx, repository.NoTX, "user-1",
			repository.TransactionFilter{Kind: model.TransactionKindRefund}, 10, 0)
		if len(hist) != 1 {
			t.Fatalf("expected one refund transaction, got %d", len(hist))
		}
		meta := hist[0].Meta
		if meta["clawed_back"].(int64) != 300 || meta["shortfall_points"].(int64) != 1700 {
			t.Errorf("expected clawed_back=300 shortfall=1700, got %v", meta)
		}
	})

	t.Run("partial refund reverses proportional points", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)

		// refund half the total -> half the points
		half := p.Total.Div(decimal.NewFromInt(2)).Round(2)
		if _, err := uc.Refund(ctx, p.ID, half, "partial"); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if got := deps.ledger.balance("user-1"); got != 1000 {
			t.Errorf("expected 1000 points left, got %d", got)
		}
	})

	t.Run("refund is idempotent", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)

		if _, err := uc.Refund(ctx, p.ID, decimal.Zero, "once"); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if _, err := uc.Refund(ctx, p.ID, decimal.Zero, "twice"); err != nil {
			t.Fatalf("second refund: %v", err)
		}
		if deps.gateway.refundCalls != 1 {
			t.Errorf("expected a single gateway refund, got %d", deps.gateway.refundCalls)
		}
		if n := deps.ledger.countByKind("user-1", model.TransactionKindRefund); n != 1 {
			t.Errorf("expected a single clawback, got %d", n)
		}
	})

	t.Run("concurrent refunds fire a single gateway refund", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)

		// hold the provider call open so both callers pass the status read
		// before either one finishes
		deps.gateway.refundDelay = 50 * time.Millisecond

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = uc.Refund(ctx, p.ID, decimal.Zero, "duplicate request")
			}(i)
		}
		wg.Wait()

		if deps.gateway.refundCalls != 1 {
			t.Errorf("expected a single gateway refund, got %d", deps.gateway.refundCalls)
		}
		if n := deps.ledger.countByKind("user-1", model.TransactionKindRefund); n != 1 {
			t.Errorf("expected a single clawback, got %d", n)
		}
		stored, _ := deps.purchases.FindByID(ctx, repository.NoTX, p.ID)
		if stored.Status != model.PurchaseStatusRefunded {
			t.Errorf("expected refunded, got %s", stored.Status)
		}
		for i, err := range errs {
			if err != nil && !errors.Is(err, domain.ErrConcurrencyConflict) {
				t.Errorf("caller %d: expected nil or ErrConcurrencyConflict, got %v", i, err)
			}
		}
	})

	t.Run("gateway rejection hands the purchase back", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)
		deps.gateway.refundErr = errors.New("provider says no")

		if _, err := uc.Refund(ctx, p.ID, decimal.Zero, "first try"); !errors.Is(err, domain.ErrPaymentGateway) {
			t.Fatalf("expected ErrPaymentGateway, got %v", err)
		}
		stored, _ := deps.purchases.FindByID(ctx, repository.NoTX, p.ID)
		if stored.Status != model.PurchaseStatusCompleted {
			t.Errorf("expected completed after handback, got %s", stored.Status)
		}
		if deps.ledger.balance("user-1") != 2000 {
			t.Errorf("expected points untouched, got %d", deps.ledger.balance("user-1"))
		}

		// a later attempt can claim the refund again
		deps.gateway.refundErr = nil
		got, err := uc.Refund(ctx, p.ID, decimal.Zero, "second try")
		if err != nil {
			t.Fatalf("retry refund: %v", err)
		}
		if got.Status != model.PurchaseStatusRefunded {
			t.Errorf("expected refunded, got %s", got.Status)
		}
	})

	t.Run("only completed purchases can be refunded", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		res, err := uc.Initiate(ctx, "user-1", "pro", "")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		if _, err := uc.Refund(ctx, res.Purchase.ID, decimal.Zero, "too early"); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("amount above the total is rejected", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "100.00")
		p := completed(t, uc, deps)

		over := p.Total.Add(decimal.NewFromInt(1))
		if _, err := uc.Refund(ctx, p.ID, over, "greedy"); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})
}

func TestPurchaseUseCase_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("pending purchase can be cancelled", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		res, err := uc.Initiate(ctx, "user-1", "pro", "")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}

		p, err := uc.Cancel(ctx, res.Purchase.ID)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.Status != model.PurchaseStatusCancelled {
			t.Errorf("expected cancelled, got %s", p.Status)
		}
		// double cancel is a no-op
		if _, err := uc.Cancel(ctx, res.Purchase.ID); err != nil {
			t.Errorf("double cancel: %v", err)
		}
	})

	t.Run("completed purchase cannot be cancelled", func(t *testing.T) {
		uc, deps := newPurchaseUCDeps()
		seedPackage(t, deps, "pro", 2000, "24.99")
		res, err := uc.Initiate(ctx, "user-1", "pro", "")
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if _, err := uc.Confirm(ctx, res.Purchase.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		if _, err := uc.Cancel(ctx, res.Purchase.ID); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestPurchaseUseCase_Revenue(t *testing.T) {
	ctx := context.Background()
	uc, _ := newPurchaseUCDeps()

	if _, err := uc.Revenue(ctx, "fortnight"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
