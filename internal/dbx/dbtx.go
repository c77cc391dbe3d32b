// Package dbx holds the small database plumbing shared by all repositories:
// an interface satisfied by both *sql.DB and *sql.Tx, and a helper that
// wraps a function in a commit-or-nothing transaction.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql that repositories use. Both *sql.DB
// and *sql.Tx satisfy it, so the same repository code runs inside and
// outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with the transactional handle, and
// commits on success or rolls back on error or panic. Panics are rethrown
// after rollback. Every multi-row mutation in the auth flows (login,
// restore, hijack revocation, logout) runs through this helper.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
