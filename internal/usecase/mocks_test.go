//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func mustPast() time.Time   { return time.Now().Add(-24 * time.Hour) }
func mustFuture() time.Time { return time.Now().Add(24 * time.Hour) }

// mockTxManager passes calls straight through. Atomicity in unit tests comes
// from the mutex inside memLedgerRepo.Append, which mirrors the row lock the
// real repository takes.
type mockTxManager struct {
	err error // simulate a failed transaction
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.err != nil {
		return m.err
	}
	return fn(ctx, repository.NoTX)
}

// memLedgerRepo is the in-memory ledger used by unit tests. Append holds the
// lock across read-check-insert-update, like the SELECT FOR UPDATE path.
type memLedgerRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.PointAccount
	txs      map[string][]*model.Transaction

	appendErr error // simulate append failures
	now       func() time.Time
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{
		accounts: make(map[string]*model.PointAccount),
		txs:      make(map[string][]*model.Transaction),
		now:      time.Now,
	}
}

func (m *memLedgerRepo) CreateIfAbsent(ctx context.Context, _ repository.Tx, userID string) (*model.PointAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		a = model.NewPointAccount(userID, m.now())
		m.accounts[userID] = a
	}
	cp := *a
	return &cp, nil
}

func (m *memLedgerRepo) Find(ctx context.Context, _ repository.Tx, userID string) (*model.PointAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memLedgerRepo) Append(ctx context.Context, _ repository.Tx, userID string, e repository.LedgerEntry) (*model.Transaction, error) {
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[userID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	after := a.Balance + e.Amount
	if after < 0 {
		return nil, &domain.InsufficientBalanceError{Required: -e.Amount, Available: a.Balance}
	}

	now := m.now()
	t := &model.Transaction{
		ID:            ulid.Make().String(),
		UserID:        userID,
		Kind:          e.Kind,
		Amount:        e.Amount,
		BalanceBefore: a.Balance,
		BalanceAfter:  after,
		RefKind:       e.RefKind,
		RefID:         e.RefID,
		Description:   e.Description,
		Meta:          e.Meta,
		CreatedAt:     now,
		ExpiresAt:     e.ExpiresAt,
	}

	mag := e.Amount
	if mag < 0 {
		mag = -mag
	}
	switch e.Kind {
	case model.TransactionKindPurchase:
		a.TotalPurchased += mag
	case model.TransactionKindBonus, model.TransactionKindAdminCredit:
		a.TotalBonus += mag
	case model.TransactionKindDeduct:
		a.TotalSpent += mag
		a.MonthlyUsed += mag
	case model.TransactionKindAdminDebit, model.TransactionKindTransfer, model.TransactionKindExpired:
		a.TotalSpent += mag
	case model.TransactionKindRefund:
		a.TotalRefunded += mag
	}
	a.Balance = after
	a.UpdatedAt = now

	m.txs[userID] = append(m.txs[userID], t)
	cp := *t
	return &cp, nil
}

func (m *memLedgerRepo) History(ctx context.Context, _ repository.Tx, userID string, f repository.TransactionFilter, limit, offset int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.txs[userID]
	var out []*model.Transaction
	for i := len(all) - 1; i >= 0; i-- { // newest first
		t := all[i]
		if f.Kind != "" && t.Kind != f.Kind {
			continue
		}
		if f.RefKind != "" && t.RefKind != f.RefKind {
			continue
		}
		if !f.Since.IsZero() && t.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && t.CreatedAt.After(f.Until) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedgerRepo) ResetMonthly(ctx context.Context, _ repository.Tx, userID string, now, next time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return false, domain.ErrAccountNotFound
	}
	if a.NextResetAt.After(now) {
		return false, nil
	}
	a.MonthlyUsed = 0
	a.NextResetAt = next
	a.UpdatedAt = m.now()
	return true, nil
}

func (m *memLedgerRepo) SetMonthlyAllotment(ctx context.Context, _ repository.Tx, userID string, points int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.MonthlyAllotment = points
	a.UpdatedAt = m.now()
	return nil
}

// seed primes an account for tests that need a starting balance.
func (m *memLedgerRepo) seed(userID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := model.NewPointAccount(userID, m.now())
	a.Balance = balance
	m.accounts[userID] = a
}

func (m *memLedgerRepo) balance(userID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[userID]; ok {
		return a.Balance
	}
	return 0
}

func (m *memLedgerRepo) countByKind(userID string, kind model.TransactionKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.txs[userID] {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

// memPriceRepo stores service price overrides.
type memPriceRepo struct {
	mu    sync.RWMutex
	store map[model.ServiceID]*model.ServicePrice
}

func newMemPriceRepo() *memPriceRepo {
	return &memPriceRepo{store: make(map[model.ServiceID]*model.ServicePrice)}
}

func (m *memPriceRepo) GetByService(ctx context.Context, _ repository.Tx, service model.ServiceID) (*model.ServicePrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[service]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPriceRepo) ListActive(ctx context.Context, _ repository.Tx) ([]*model.ServicePrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ServicePrice
	for _, p := range m.store {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPriceRepo) Save(ctx context.Context, _ repository.Tx, p *model.ServicePrice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.Service] = &cp
	return nil
}

func (m *memPriceRepo) Deactivate(ctx context.Context, _ repository.Tx, service model.ServiceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[service]
	if !ok {
		return domain.ErrNotFound
	}
	p.Active = false
	return nil
}

// memPackageRepo stores point packages.
type memPackageRepo struct {
	mu    sync.RWMutex
	store map[string]*model.PointPackage
}

func newMemPackageRepo() *memPackageRepo {
	return &memPackageRepo{store: make(map[string]*model.PointPackage)}
}

func (m *memPackageRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.PointPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPackageRepo) ListActive(ctx context.Context, _ repository.Tx) ([]*model.PointPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.PointPackage
	for _, p := range m.store {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPackageRepo) Save(ctx context.Context, _ repository.Tx, p *model.PointPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

// memPurchaseRepo stores purchases. UpdateStatus is the same conditional
// compare-and-set the SQL implementation does.
type memPurchaseRepo struct {
	mu    sync.Mutex
	store map[string]*model.Purchase
	byRef map[string]string // payment ref -> purchase id
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{store: make(map[string]*model.Purchase), byRef: make(map[string]string)}
}

func (m *memPurchaseRepo) Save(ctx context.Context, _ repository.Tx, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	if p.PaymentRef != "" {
		m.byRef[p.PaymentRef] = p.ID
	}
	return nil
}

func (m *memPurchaseRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPurchaseRepo) FindByPaymentRef(ctx context.Context, _ repository.Tx, ref string) (*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m.store[id]
	return &cp, nil
}

func (m *memPurchaseRepo) UpdateStatus(ctx context.Context, _ repository.Tx, id string, from, to model.PurchaseStatus, gatewayTx string, at time.Time) (bool, error) {
	if !from.CanTransition(to) {
		return false, domain.ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = at
	if gatewayTx != "" {
		p.GatewayTx = gatewayTx
	}
	switch {
	case to == model.PurchaseStatusCompleted && from == model.PurchaseStatusPending:
		t := at
		p.PaidAt = &t
	case to == model.PurchaseStatusRefunded:
		t := at
		p.RefundedAt = &t
	}
	return true, nil
}

func (m *memPurchaseRepo) ListByUser(ctx context.Context, _ repository.Tx, userID string, limit, offset int) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPurchaseRepo) ListPendingOlderThan(ctx context.Context, _ repository.Tx, olderThan time.Time, limit int) ([]*model.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Purchase
	for _, p := range m.store {
		if p.Status == model.PurchaseStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPurchaseRepo) SumRevenueByPeriod(ctx context.Context, _ repository.Tx, period string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, p := range m.store {
		if p.Status == model.PurchaseStatusCompleted || p.Status == model.PurchaseStatusRefunded {
			sum = sum.Add(p.Total)
		}
	}
	return sum, nil
}

// memPromoRepo stores promo codes; Apply does the guarded increment.
type memPromoRepo struct {
	mu          sync.Mutex
	store       map[string]*model.PromoCode
	redemptions map[string][]string // code -> userIDs
}

func newMemPromoRepo() *memPromoRepo {
	return &memPromoRepo{store: make(map[string]*model.PromoCode), redemptions: make(map[string][]string)}
}

func (m *memPromoRepo) FindByCode(ctx context.Context, _ repository.Tx, code string) (*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPromoRepo) Save(ctx context.Context, _ repository.Tx, p *model.PromoCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.Code] = &cp
	return nil
}

func (m *memPromoRepo) CountRedemptionsByUser(ctx context.Context, _ repository.Tx, code, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.redemptions[code] {
		if u == userID {
			n++
		}
	}
	return n, nil
}

func (m *memPromoRepo) Apply(ctx context.Context, _ repository.Tx, code, userID, purchaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[code]
	if !ok || !p.Active || p.TimesUsed >= p.MaxUses {
		return &domain.PromoInvalidError{Code: code, Reason: domain.PromoExhausted}
	}
	used := 0
	for _, u := range m.redemptions[code] {
		if u == userID {
			used++
		}
	}
	if used >= p.MaxUsesPerUser {
		return &domain.PromoInvalidError{Code: code, Reason: domain.PromoUserExhausted}
	}
	p.TimesUsed++
	m.redemptions[code] = append(m.redemptions[code], userID)
	return nil
}

// memSubRepo stores subscriptions; AdvancePeriod is the conditional winner
// gate.
type memSubRepo struct {
	mu    sync.Mutex
	store map[string]*model.Subscription
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{store: make(map[string]*model.Subscription)}
}

func (m *memSubRepo) Save(ctx context.Context, _ repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubRepo) FindActiveByUser(ctx context.Context, _ repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.UserID == userID && s.Status == model.SubscriptionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) ListDue(ctx context.Context, _ repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.store {
		if s.Status == model.SubscriptionStatusActive && !s.NextBillingAt.After(now) {
			cp := *s
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memSubRepo) UpdateStatus(ctx context.Context, _ repository.Tx, id string, status model.SubscriptionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSubRepo) AdvancePeriod(ctx context.Context, _ repository.Tx, id string, now, newStart, newEnd, newNext time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if s.NextBillingAt.After(now) {
		return false, nil
	}
	s.PeriodStart = newStart
	s.PeriodEnd = newEnd
	s.NextBillingAt = newNext
	s.UpdatedAt = time.Now()
	return true, nil
}

// mockGateway is a scriptable payment gateway.
type mockGateway struct {
	mu          sync.Mutex
	createErr   error
	verifyErr   error
	refundErr   error
	verifyOK    bool
	verifyHook  func()        // runs before VerifyPayment answers
	refundDelay time.Duration // holds RefundPayment open to widen races
	seq         int
	verifyCalls int
	refundCalls int
}

func newMockGateway() *mockGateway { return &mockGateway{verifyOK: true} }

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) CreatePayment(ctx context.Context, amount decimal.Decimal, currency, description, callbackURL string, meta map[string]interface{}) (string, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", "", g.createErr
	}
	g.seq++
	ref := "ref-" + ulid.Make().String()
	return ref, "https://pay.example/" + ref, nil
}

func (g *mockGateway) VerifyPayment(ctx context.Context, ref string, amount decimal.Decimal, currency string) (bool, string, error) {
	g.mu.Lock()
	hook := g.verifyHook
	g.verifyCalls++
	verifyErr, verifyOK := g.verifyErr, g.verifyOK
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if verifyErr != nil {
		return false, "", verifyErr
	}
	if !verifyOK {
		return false, "", nil
	}
	return true, "tx-" + ref, nil
}

func (g *mockGateway) RefundPayment(ctx context.Context, ref string, amount decimal.Decimal, currency, reason string) (string, error) {
	g.mu.Lock()
	g.refundCalls++
	delay, refundErr := g.refundDelay, g.refundErr
	g.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if refundErr != nil {
		return "", refundErr
	}
	return "rf-" + ref, nil
}
