package memstore

import (
	"context"

	"github.com/jackc/pgx/v4"

	"mindspace/internal/domain/ports/repository"
)

var _ repository.TransactionManager = TxManager{}

// TxManager runs fn directly; memstore repositories ignore tx.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}
