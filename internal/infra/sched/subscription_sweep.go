package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/storeseo/pointsledger/internal/usecase"
)

// SubscriptionSweep periodically rolls due subscription periods forward via
// the use case, so dormant accounts still get their monthly grant on time.
type SubscriptionSweep struct {
	interval time.Duration
	subUC    usecase.SubscriptionUseCase
	log      *zerolog.Logger
}

func NewSubscriptionSweep(interval time.Duration, subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *SubscriptionSweep {
	if interval <= 0 {
		interval = time.Hour
	}
	sweepLog := logger.With().Str("component", "SubscriptionSweep").Logger()
	return &SubscriptionSweep{
		interval: interval,
		subUC:    subUC,
		log:      &sweepLog,
	}
}

func (w *SubscriptionSweep) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting subscription sweep")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping subscription sweep")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subUC.ReconcileDue(ctx, time.Now())
			if err != nil {
				w.log.Error().Err(err).Msg("subscription sweep error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("subscription periods advanced")
			}
		}
	}
}
