package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/infra/metrics"
)

// SubscriptionUseCase manages monthly point subscriptions and drives the
// periodic reconciliation sweep.
type SubscriptionUseCase interface {
	// Subscribe starts an active subscription on a subscription-type package,
	// sets the account's monthly allotment and grants the first month.
	Subscribe(ctx context.Context, userID, packageID string) (*model.Subscription, error)

	Cancel(ctx context.Context, subscriptionID string) error
	Pause(ctx context.Context, subscriptionID string) error
	Resume(ctx context.Context, subscriptionID string) error

	GetActive(ctx context.Context, userID string) (*model.Subscription, error)

	// ReconcileDue advances every due subscription: auto-renewing ones get a
	// new period plus the monthly grant; others expire. Safe to invoke
	// redundantly; the conditional period advance picks one winner.
	ReconcileDue(ctx context.Context, now time.Time) (int, error)
}

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	packages repository.PackageRepository
	ledger   repository.LedgerRepository
	points   PointsUseCase
	tx       repository.TransactionManager
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	packages repository.PackageRepository,
	ledger repository.LedgerRepository,
	points PointsUseCase,
	tx repository.TransactionManager,
	logger *zerolog.Logger,
) *subscriptionUC {
	return &subscriptionUC{
		subs:     subs,
		packages: packages,
		ledger:   ledger,
		points:   points,
		tx:       tx,
		log:      logger,
		now:      time.Now,
	}
}

func (u *subscriptionUC) Subscribe(ctx context.Context, userID, packageID string) (*model.Subscription, error) {
	pkg, err := u.packages.FindByID(ctx, repository.NoTX, packageID)
	if err != nil {
		return nil, err
	}
	if !pkg.Active || !pkg.Subscription {
		return nil, domain.ErrInvalidArgument
	}
	if existing, err := u.subs.FindActiveByUser(ctx, repository.NoTX, userID); err == nil && existing != nil {
		return nil, domain.ErrAlreadyExists
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := u.now()
	sub, err := model.NewSubscription(uuid.NewString(), userID, pkg, now)
	if err != nil {
		return nil, err
	}
	err = u.tx.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, qx repository.Tx) error {
		if err := u.subs.Save(ctx, qx, sub); err != nil {
			return err
		}
		if _, err := u.ledger.CreateIfAbsent(ctx, qx, userID); err != nil {
			return err
		}
		if err := u.ledger.SetMonthlyAllotment(ctx, qx, userID, sub.MonthlyPoints); err != nil {
			return err
		}
		// First month is granted at subscription time; later periods come
		// from reconciliation.
		_, err := u.points.GrantIn(ctx, qx, userID, sub.MonthlyPoints,
			model.TransactionKindBonus, "subscription", sub.ID,
			"subscription started", nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.IncSubscription("started")
	u.log.Info().Str("user_id", userID).Str("subscription_id", sub.ID).
		Str("package_id", pkg.ID).Msg("subscription started")
	return sub, nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, subscriptionID string) error {
	return u.setStatus(ctx, subscriptionID, model.SubscriptionStatusCancelled,
		model.SubscriptionStatusActive, model.SubscriptionStatusPaused)
}

func (u *subscriptionUC) Pause(ctx context.Context, subscriptionID string) error {
	return u.setStatus(ctx, subscriptionID, model.SubscriptionStatusPaused,
		model.SubscriptionStatusActive)
}

func (u *subscriptionUC) Resume(ctx context.Context, subscriptionID string) error {
	return u.setStatus(ctx, subscriptionID, model.SubscriptionStatusActive,
		model.SubscriptionStatusPaused)
}

func (u *subscriptionUC) setStatus(ctx context.Context, id string, to model.SubscriptionStatus, allowedFrom ...model.SubscriptionStatus) error {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, s := range allowedFrom {
		if sub.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return domain.ErrInvalidTransition
	}
	if err := u.subs.UpdateStatus(ctx, repository.NoTX, id, to); err != nil {
		return err
	}
	if to == model.SubscriptionStatusCancelled {
		// allotment stops with the entitlement; remaining balance stays spendable
		if err := u.ledger.SetMonthlyAllotment(ctx, repository.NoTX, sub.UserID, 0); err != nil {
			return err
		}
	}
	metrics.IncSubscription(string(to))
	u.log.Info().Str("subscription_id", id).Str("status", string(to)).Msg("subscription status changed")
	return nil
}

func (u *subscriptionUC) GetActive(ctx context.Context, userID string) (*model.Subscription, error) {
	return u.subs.FindActiveByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) ReconcileDue(ctx context.Context, now time.Time) (int, error) {
	due, err := u.subs.ListDue(ctx, repository.NoTX, now, 500)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	processed := 0
	for _, sub := range due {
		if err := u.reconcileOne(ctx, sub, now); err != nil {
			u.log.Error().Err(err).Str("subscription_id", sub.ID).Msg("subscription reconcile failed")
			continue
		}
		processed++
	}
	return processed, nil
}

func (u *subscriptionUC) reconcileOne(ctx context.Context, sub *model.Subscription, now time.Time) error {
	if !sub.AutoRenew {
		if err := u.subs.UpdateStatus(ctx, repository.NoTX, sub.ID, model.SubscriptionStatusExpired); err != nil {
			return err
		}
		if err := u.ledger.SetMonthlyAllotment(ctx, repository.NoTX, sub.UserID, 0); err != nil {
			return err
		}
		metrics.IncSubscription("expired")
		u.log.Info().Str("subscription_id", sub.ID).Msg("subscription expired")
		return nil
	}

	next := *sub
	next.Advance(now)
	won, err := u.subs.AdvancePeriod(ctx, repository.NoTX, sub.ID, now,
		next.PeriodStart, next.PeriodEnd, next.NextBillingAt)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	// The grant itself is keyed on the account's reset timestamp, so a lazy
	// balance read racing this sweep still grants once.
	_, err = u.points.ReconcileMonthly(ctx, sub.UserID)
	return err
}
