package database

import (
	"context"
	"database/sql"
)

// txKey carries the active transaction through a request context.
type txKey struct{}

// Querier is the read surface shared by *sql.DB and *sql.Tx. Repositories
// query through it so the reads of one authorize request can share a single
// transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxManager runs a function within one database transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// sqlTxManager implements TxManager over a SQL connection pool.
type sqlTxManager struct {
	db *sql.DB
}

// NewTxManager creates a TxManager bound to the given database.
func NewTxManager(db *sql.DB) TxManager {
	return &sqlTxManager{db: db}
}

// WithTx begins a transaction, places it in the context for GetTx, and runs
// fn. The transaction commits when fn returns nil and rolls back otherwise,
// so the connection is released on every exit path.
func (m *sqlTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	ctx = context.WithValue(ctx, txKey{}, tx)

	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return rbErr
		}
		return err
	}

	return tx.Commit()
}

// GetTx returns the transaction carried by ctx, or the bare connection pool
// when none is present.
func GetTx(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}
