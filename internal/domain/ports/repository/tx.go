package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// NoTX marks the non-transactional path when calling a repository method.
var NoTX Tx

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `qx`.
//
// - Keeps use-case interfaces clean (no transaction types leaking out).
// - Repository methods that accept `qx` detect a tx implementation-side and
//   run SELECT ... FOR UPDATE / tx-bound Exec/Query as needed.
// - Repositories MUST gracefully accept nil qx (non-transactional path).
//
// The concrete type of `qx` is infra-defined (pgx.Tx for Postgres).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
