package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/storeseo/pointsledger/internal/domain"
	"github.com/storeseo/pointsledger/internal/domain/model"
	"github.com/storeseo/pointsledger/internal/domain/ports/repository"
)

var _ repository.ServicePriceRepository = (*servicePriceRepo)(nil)

type servicePriceRepo struct{ pool *pgxpool.Pool }

func NewServicePriceRepo(pool *pgxpool.Pool) *servicePriceRepo {
	return &servicePriceRepo{pool: pool}
}

const priceCols = `service, cost, category, active, created_at, updated_at`

func (r *servicePriceRepo) GetByService(ctx context.Context, tx repository.Tx, service model.ServiceID) (*model.ServicePrice, error) {
	const q = `SELECT ` + priceCols + ` FROM service_prices WHERE service=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, service)
	if err != nil {
		return nil, err
	}
	p := &model.ServicePrice{}
	if err := row.Scan(&p.Service, &p.Cost, &p.Category, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *servicePriceRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ServicePrice, error) {
	const q = `SELECT ` + priceCols + ` FROM service_prices WHERE active ORDER BY service;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.ServicePrice
	for rows.Next() {
		p := &model.ServicePrice{}
		if err := rows.Scan(&p.Service, &p.Cost, &p.Category, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *servicePriceRepo) Save(ctx context.Context, tx repository.Tx, p *model.ServicePrice) error {
	const q = `
INSERT INTO service_prices (` + priceCols + `)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (service) DO UPDATE SET
  cost=$2, category=$3, active=$4, updated_at=$6;`
	_, err := execSQL(ctx, r.pool, tx, q, p.Service, p.Cost, p.Category, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *servicePriceRepo) Deactivate(ctx context.Context, tx repository.Tx, service model.ServiceID) error {
	const q = `UPDATE service_prices SET active=FALSE, updated_at=NOW() WHERE service=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, service)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
