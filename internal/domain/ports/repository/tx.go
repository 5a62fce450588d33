package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Repositories accept it so a use
// case can group several writes into one transaction; passing nil makes
// the repository fall back to its own pool.
type Tx any

// TransactionManager begins a transaction, invokes the callback and
// commits or rolls back depending on the returned error.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
