package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/infra/metrics"
)

// maxConflictRetries bounds automatic retry on optimistic-lock conflicts
// before the conflict surfaces to the caller.
const maxConflictRetries = 3

// PointsUseCase is the transactional core: every balance mutation in the
// system flows through it into LedgerRepository.Append.
type PointsUseCase interface {
	// Consume resolves the service cost and debits it. Propagates
	// InsufficientBalanceError untouched; no partial application.
	Consume(ctx context.Context, userID string, service model.ServiceID, referenceID string, meta map[string]interface{}) (*model.Transaction, error)

	// Grant credits the account. Rejects amount <= 0 with ErrInvalidAmount.
	Grant(ctx context.Context, userID string, amount int64, kind model.TransactionKind, refKind, refID, description string) (*model.Transaction, error)

	// GrantIn is Grant inside an existing transaction. The purchase
	// coordinator uses it so credit and status transition commit together.
	GrantIn(ctx context.Context, qx repository.Tx, userID string, amount int64, kind model.TransactionKind, refKind, refID, description string, meta map[string]interface{}) (*model.Transaction, error)

	// AdminCredit/AdminDebit record the acting admin for audit. Debit fails
	// with InsufficientBalanceError when amount exceeds the balance.
	AdminCredit(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error)
	AdminDebit(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error)

	// ReconcileMonthly applies the monthly reset and, if an active
	// subscription exists, its grant, exactly once per period. Returns
	// (nil, nil) when inside the current period or when another caller won.
	ReconcileMonthly(ctx context.Context, userID string) (*model.Transaction, error)

	// Balance lazily creates the account, reconciles, and returns the
	// projection.
	Balance(ctx context.Context, userID string) (*model.PointAccount, error)

	History(ctx context.Context, userID string, f repository.TransactionFilter, limit, offset int) ([]*model.Transaction, error)
}

var _ PointsUseCase = (*pointsUC)(nil)

type pointsUC struct {
	ledger  repository.LedgerRepository
	subs    repository.SubscriptionRepository
	pricing PricingUseCase
	tx      repository.TransactionManager
	log     *zerolog.Logger
	now     func() time.Time
}

func NewPointsUseCase(
	ledger repository.LedgerRepository,
	subs repository.SubscriptionRepository,
	pricing PricingUseCase,
	tx repository.TransactionManager,
	logger *zerolog.Logger,
) *pointsUC {
	return &pointsUC{
		ledger:  ledger,
		subs:    subs,
		pricing: pricing,
		tx:      tx,
		log:     logger,
		now:     time.Now,
	}
}

// withConflictRetry re-runs fn while it fails with ErrConcurrencyConflict,
// up to maxConflictRetries attempts.
func (u *pointsUC) withConflictRetry(fn func() error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = fn()
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
	}
	return err
}

func (u *pointsUC) Consume(ctx context.Context, userID string, service model.ServiceID, referenceID string, meta map[string]interface{}) (*model.Transaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	cost, err := u.pricing.CostOf(ctx, service)
	if err != nil {
		return nil, err
	}

	entryMeta := map[string]interface{}{"unit_cost": cost}
	for k, v := range meta {
		entryMeta[k] = v
	}
	if referenceID != "" {
		entryMeta["reference_id"] = referenceID
	}

	var txn *model.Transaction
	err = u.withConflictRetry(func() error {
		return u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
			if _, err := u.ledger.CreateIfAbsent(ctx, qx, userID); err != nil {
				return err
			}
			if _, err := u.reconcileLocked(ctx, qx, userID, u.now()); err != nil {
				return err
			}
			t, err := u.ledger.Append(ctx, qx, userID, repository.LedgerEntry{
				Kind:        model.TransactionKindDeduct,
				Amount:      -cost,
				RefKind:     "service",
				RefID:       string(service),
				Description: "consume " + string(service),
				Meta:        entryMeta,
			})
			if err != nil {
				return err
			}
			txn = t
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			metrics.IncConsume(string(service), "insufficient")
		} else {
			metrics.IncConsume(string(service), "error")
		}
		return nil, err
	}
	metrics.IncConsume(string(service), "ok")
	metrics.AddPointsSpent(cost)
	u.log.Debug().Str("user_id", userID).Str("service", string(service)).
		Int64("cost", cost).Int64("balance", txn.BalanceAfter).Msg("points consumed")
	return txn, nil
}

func (u *pointsUC) Grant(ctx context.Context, userID string, amount int64, kind model.TransactionKind, refKind, refID, description string) (*model.Transaction, error) {
	var txn *model.Transaction
	err := u.withConflictRetry(func() error {
		return u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
			t, err := u.GrantIn(ctx, qx, userID, amount, kind, refKind, refID, description, nil)
			if err != nil {
				return err
			}
			txn = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (u *pointsUC) GrantIn(ctx context.Context, qx repository.Tx, userID string, amount int64, kind model.TransactionKind, refKind, refID, description string, meta map[string]interface{}) (*model.Transaction, error) {
	if userID == "" || !kind.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !kind.Credit() {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := u.ledger.CreateIfAbsent(ctx, qx, userID); err != nil {
		return nil, err
	}
	return u.ledger.Append(ctx, qx, userID, repository.LedgerEntry{
		Kind:        kind,
		Amount:      amount,
		RefKind:     refKind,
		RefID:       refID,
		Description: description,
		Meta:        meta,
	})
}

func (u *pointsUC) AdminCredit(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error) {
	if actorID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var txn *model.Transaction
	err := u.withConflictRetry(func() error {
		return u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
			t, err := u.GrantIn(ctx, qx, userID, amount, model.TransactionKindAdminCredit,
				"admin", actorID, reason, map[string]interface{}{"actor_id": actorID})
			if err != nil {
				return err
			}
			txn = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("actor_id", actorID).
		Int64("amount", amount).Str("reason", reason).Msg("admin credit")
	return txn, nil
}

func (u *pointsUC) AdminDebit(ctx context.Context, userID string, amount int64, reason, actorID string) (*model.Transaction, error) {
	if actorID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	var txn *model.Transaction
	err := u.withConflictRetry(func() error {
		return u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
			if _, err := u.ledger.CreateIfAbsent(ctx, qx, userID); err != nil {
				return err
			}
			t, err := u.ledger.Append(ctx, qx, userID, repository.LedgerEntry{
				Kind:        model.TransactionKindAdminDebit,
				Amount:      -amount,
				RefKind:     "admin",
				RefID:       actorID,
				Description: reason,
				Meta:        map[string]interface{}{"actor_id": actorID},
			})
			if err != nil {
				return err
			}
			txn = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", userID).Str("actor_id", actorID).
		Int64("amount", amount).Str("reason", reason).Msg("admin debit")
	return txn, nil
}

func (u *pointsUC) ReconcileMonthly(ctx context.Context, userID string) (*model.Transaction, error) {
	var txn *model.Transaction
	err := u.withConflictRetry(func() error {
		return u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
			if _, err := u.ledger.CreateIfAbsent(ctx, qx, userID); err != nil {
				return err
			}
			t, err := u.reconcileLocked(ctx, qx, userID, u.now())
			if err != nil {
				return err
			}
			txn = t
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// reconcileLocked runs the monthly reset inside an open transaction. The
// conditional ResetMonthly update picks a single winner per period, so
// redundant invocation grants at most once.
func (u *pointsUC) reconcileLocked(ctx context.Context, qx repository.Tx, userID string, now time.Time) (*model.Transaction, error) {
	acct, err := u.ledger.Find(ctx, qx, userID)
	if err != nil {
		return nil, err
	}
	if now.Before(acct.NextResetAt) {
		return nil, nil
	}
	next := acct.NextResetAt
	for !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	won, err := u.ledger.ResetMonthly(ctx, qx, userID, now, next)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}
	sub, err := u.subs.FindActiveByUser(ctx, qx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if sub == nil || sub.MonthlyPoints <= 0 {
		return nil, nil
	}
	t, err := u.ledger.Append(ctx, qx, userID, repository.LedgerEntry{
		Kind:        model.TransactionKindBonus,
		Amount:      sub.MonthlyPoints,
		RefKind:     "subscription",
		RefID:       sub.ID,
		Description: "monthly subscription grant",
	})
	if err != nil {
		return nil, err
	}
	metrics.IncMonthlyGrant()
	u.log.Info().Str("user_id", userID).Str("subscription_id", sub.ID).
		Int64("amount", sub.MonthlyPoints).Msg("monthly grant applied")
	return t, nil
}

func (u *pointsUC) Balance(ctx context.Context, userID string) (*model.PointAccount, error) {
	if _, err := u.ReconcileMonthly(ctx, userID); err != nil {
		return nil, err
	}
	return u.ledger.Find(ctx, repository.NoTX, userID)
}

func (u *pointsUC) History(ctx context.Context, userID string, f repository.TransactionFilter, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.ledger.History(ctx, repository.NoTX, userID, f, limit, offset)
}
