package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storeseo/pointsledger/internal/domain"
)

// PointPackage is a catalog item offered for purchase. Price and points are
// captured into the Purchase at checkout, so later edits never change an
// in-flight purchase.
type PointPackage struct {
	ID           string // UUID
	Name         string
	Points       int64
	Price        decimal.Decimal
	Currency     string
	Subscription bool // true: grants Points monthly while subscribed
	Active       bool
	CreatedAt    time.Time
}

func (p *PointPackage) IsZero() bool { return p == nil || p.ID == "" }

// NewPointPackage validates and constructs a package.
func NewPointPackage(id, name string, points int64, price decimal.Decimal, currency string, subscription bool) (*PointPackage, error) {
	if id == "" || name == "" || points <= 0 || price.LessThanOrEqual(decimal.Zero) || currency == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &PointPackage{
		ID:           id,
		Name:         name,
		Points:       points,
		Price:        price,
		Currency:     currency,
		Subscription: subscription,
		Active:       true,
		CreatedAt:    time.Now(),
	}, nil
}
