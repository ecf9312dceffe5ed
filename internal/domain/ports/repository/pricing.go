package repository

import (
	"context"

	"github.com/storeseo/pointsledger/internal/domain/model"
)

// ServicePriceRepository stores admin-managed cost overrides. The static
// fallback table lives in the pricing use case, not here.
type ServicePriceRepository interface {
	GetByService(ctx context.Context, qx Tx, service model.ServiceID) (*model.ServicePrice, error)
	ListActive(ctx context.Context, qx Tx) ([]*model.ServicePrice, error)
	Save(ctx context.Context, qx Tx, p *model.ServicePrice) error
	Deactivate(ctx context.Context, qx Tx, service model.ServiceID) error
}
