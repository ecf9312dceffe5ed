package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

// PricingUseCase resolves point costs for metered services and carries the
// admin CRUD for cost overrides.
type PricingUseCase interface {
	// CostOf returns the point cost of a service at this moment: an active
	// override wins, then the static default table, else ErrUnknownService.
	CostOf(ctx context.Context, service model.ServiceID) (int64, error)

	// List returns all active overrides.
	List(ctx context.Context) ([]*model.ServicePrice, error)

	// Set creates or replaces the override for a service.
	Set(ctx context.Context, service model.ServiceID, cost int64, category string) (*model.ServicePrice, error)

	// Deactivate soft-deletes the override; lookups fall back to the default
	// table. Double-deactivate is idempotent success.
	Deactivate(ctx context.Context, service model.ServiceID) error
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	prices repository.ServicePriceRepository
	log    *zerolog.Logger
}

func NewPricingUseCase(prices repository.ServicePriceRepository, logger *zerolog.Logger) *pricingUC {
	return &pricingUC{prices: prices, log: logger}
}

func normalizeService(s model.ServiceID) model.ServiceID {
	return model.ServiceID(strings.ToLower(strings.TrimSpace(string(s))))
}

func (p *pricingUC) CostOf(ctx context.Context, service model.ServiceID) (int64, error) {
	svc := normalizeService(service)
	if svc == "" {
		return 0, domain.ErrUnknownService
	}
	entry, err := p.prices.GetByService(ctx, repository.NoTX, svc)
	if err == nil && entry != nil && entry.Active {
		return entry.Cost, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, err
	}
	if cost, ok := model.DefaultServiceCosts[svc]; ok {
		return cost, nil
	}
	return 0, domain.ErrUnknownService
}

func (p *pricingUC) List(ctx context.Context) ([]*model.ServicePrice, error) {
	return p.prices.ListActive(ctx, repository.NoTX)
}

func (p *pricingUC) Set(ctx context.Context, service model.ServiceID, cost int64, category string) (*model.ServicePrice, error) {
	svc := normalizeService(service)
	entry, err := model.NewServicePrice(svc, cost, category)
	if err != nil {
		return nil, err
	}
	if existing, err := p.prices.GetByService(ctx, repository.NoTX, svc); err == nil && existing != nil {
		entry.CreatedAt = existing.CreatedAt
		entry.UpdatedAt = time.Now()
	}
	if err := p.prices.Save(ctx, repository.NoTX, entry); err != nil {
		return nil, err
	}
	p.log.Info().Str("service", string(svc)).Int64("cost", cost).Msg("service price set")
	return entry, nil
}

func (p *pricingUC) Deactivate(ctx context.Context, service model.ServiceID) error {
	svc := normalizeService(service)
	if err := p.prices.Deactivate(ctx, repository.NoTX, svc); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	p.log.Info().Str("service", string(svc)).Msg("service price deactivated")
	return nil
}
