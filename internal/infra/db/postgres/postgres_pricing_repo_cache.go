package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
	"github.com/storeseo/pointsledger/internal/infra/metrics"
	red "github.com/storeseo/pointsledger/internal/infra/redis"
)

var _ repository.ServicePriceRepository = (*servicePriceRepoCacheDecorator)(nil)

// servicePriceRepoCacheDecorator is a read-through cache over the price
// overrides. Prices change rarely but are read on every consume call.
type servicePriceRepoCacheDecorator struct {
	inner repository.ServicePriceRepository
	cache red.Client
	ttl   time.Duration
}

func NewServicePriceRepoCacheDecorator(inner repository.ServicePriceRepository, cache red.Client) repository.ServicePriceRepository {
	return &servicePriceRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   5 * time.Minute,
	}
}

func priceKey(service model.ServiceID) string {
	return fmt.Sprintf("service_price:%s", service)
}

func (d *servicePriceRepoCacheDecorator) GetByService(ctx context.Context, tx repository.Tx, service model.ServiceID) (*model.ServicePrice, error) {
	val, err := d.cache.Get(ctx, priceKey(service))
	if err == nil {
		metrics.IncCacheRequest("service_price", "hit")
		var p model.ServicePrice
		if json.Unmarshal([]byte(val), &p) == nil {
			return &p, nil
		}
	}

	metrics.IncCacheRequest("service_price", "miss")
	p, err := d.inner.GetByService(ctx, tx, service)
	if err != nil {
		return nil, err
	}
	if p != nil {
		bytes, _ := json.Marshal(p)
		_ = d.cache.Set(ctx, priceKey(service), bytes, d.ttl)
	}
	return p, nil
}

func (d *servicePriceRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ServicePrice, error) {
	return d.inner.ListActive(ctx, tx)
}

// Write operations must invalidate the cache
func (d *servicePriceRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, p *model.ServicePrice) error {
	_ = d.cache.Del(ctx, priceKey(p.Service))
	return d.inner.Save(ctx, tx, p)
}

func (d *servicePriceRepoCacheDecorator) Deactivate(ctx context.Context, tx repository.Tx, service model.ServiceID) error {
	_ = d.cache.Del(ctx, priceKey(service))
	return d.inner.Deactivate(ctx, tx, service)
}
