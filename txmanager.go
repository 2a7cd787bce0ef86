package stillsuit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TransactionManager shares one pgx transaction across several
// PostgresConnector repositories. The transaction travels through the
// context; connectors pick it up transparently.
type TransactionManager struct {
	pool *pgxpool.Pool
}

// MultiRepoTxFunc runs repository operations against the transactional
// context it receives.
type MultiRepoTxFunc func(ctx context.Context) error

func NewTransactionManager(pool *pgxpool.Pool) *TransactionManager {
	if pool == nil {
		panic("stillsuit: pool cannot be nil")
	}
	return &TransactionManager{pool: pool}
}

// WithTx begins a transaction, injects it into the context and runs fn.
// The transaction commits when fn returns nil and rolls back when fn
// returns an error or panics.
func (tm *TransactionManager) WithTx(ctx context.Context, fn MultiRepoTxFunc) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(injectTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txKey struct{}

func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}
