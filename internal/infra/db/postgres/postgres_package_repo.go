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

var _ repository.PackageRepository = (*packageRepo)(nil)

type packageRepo struct{ pool *pgxpool.Pool }

func NewPackageRepo(pool *pgxpool.Pool) *packageRepo {
	return &packageRepo{pool: pool}
}

const packageCols = `id, name, points, price, currency, subscription, active, created_at`

func (r *packageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PointPackage, error) {
	const q = `SELECT ` + packageCols + ` FROM point_packages WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	p := &model.PointPackage{}
	if err := row.Scan(&p.ID, &p.Name, &p.Points, &p.Price, &p.Currency,
		&p.Subscription, &p.Active, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *packageRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.PointPackage, error) {
	const q = `SELECT ` + packageCols + ` FROM point_packages WHERE active ORDER BY price ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.PointPackage
	for rows.Next() {
		p := &model.PointPackage{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Points, &p.Price, &p.Currency,
			&p.Subscription, &p.Active, &p.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *packageRepo) Save(ctx context.Context, tx repository.Tx, p *model.PointPackage) error {
	const q = `
INSERT INTO point_packages (` + packageCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  name=$2, points=$3, price=$4, currency=$5, subscription=$6, active=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Points, p.Price, p.Currency,
		p.Subscription, p.Active, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
