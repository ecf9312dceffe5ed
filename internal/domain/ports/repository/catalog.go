package repository

import (
	"context"

	"github.com/storeseo/pointsledger/internal/domain/model"
)

// PackageRepository stores the purchasable point packages.
type PackageRepository interface {
	FindByID(ctx context.Context, qx Tx, id string) (*model.PointPackage, error)
	ListActive(ctx context.Context, qx Tx) ([]*model.PointPackage, error)
	Save(ctx context.Context, qx Tx, p *model.PointPackage) error
}
