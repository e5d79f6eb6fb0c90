package repository

import "context"

// Tx is the opaque transaction handle passed through the `qx any` argument of
// repository methods. Its concrete type is infra-defined (pgx.Tx for
// Postgres). Repositories must gracefully accept nil (non-transactional path).
type Tx interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying transaction handle via `qx`. Keeps use-case
// interfaces clean: no transaction types leak out of the infra layer.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, qx Tx) error) error
}
