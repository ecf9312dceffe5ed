package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending purchases and tries
// to finalize them by calling PurchaseUseCase.ConfirmByRef. This covers cases
// where the provider callback never arrived or the process crashed mid-confirm.
type PaymentReconciler struct {
	uc         usecase.PurchaseUseCase
	purchases  repository.PurchaseRepository
	log        *zerolog.Logger
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending purchase must be to retry
}

func NewPaymentReconciler(uc usecase.PurchaseUseCase, purchases repository.PurchaseRepository, log *zerolog.Logger, interval, staleAfter time.Duration) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := log.With().Str("worker", "payment-reconciler").Logger()
	return &PaymentReconciler{uc: uc, purchases: purchases, log: &l, interval: interval, staleAfter: staleAfter}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.purchases.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending failed")
		return
	}
	for _, p := range pending {
		if p.PaymentRef == "" {
			continue
		}
		if _, err := w.uc.ConfirmByRef(ctx, p.PaymentRef); err != nil {
			// ErrPaymentFailed means the provider answered "not settled" and
			// the purchase was marked failed; that is a resolution, not an error.
			if errors.Is(err, domain.ErrPaymentFailed) {
				w.log.Info().Str("purchase_id", p.ID).Msg("marked failed")
				continue
			}
			w.log.Warn().Err(err).Str("purchase_id", p.ID).Str("payment_ref", p.PaymentRef).Msg("confirm failed")
			continue
		}
		w.log.Info().Str("purchase_id", p.ID).Msg("reconciled")
	}
}
