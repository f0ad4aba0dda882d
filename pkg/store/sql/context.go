package sql

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

func WithTransaction(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func GetTransaction(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey{}).(*sqlx.Tx)
	return tx
}

// ext returns the transaction bound to ctx, or the pool itself.
func (db *DB) ext(ctx context.Context) sqlx.ExtContext {
	if tx := GetTransaction(ctx); tx != nil {
		return tx
	}
	return db.x
}

// InTx runs fn in a transaction carried on the context passed to fn.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := db.x.BeginTxx(ctx, nil)
	if err != nil {
		return db.Classify(err, "begin transaction")
	}
	if err := fn(WithTransaction(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return db.Classify(err, "commit transaction")
	}
	return nil
}

// Select scans rows of a rebound query into dest, honouring a transaction on ctx.
func (db *DB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, db.ext(ctx), dest, db.Rebind(query), args...)
}

// Get scans a single row of a rebound query into dest.
func (db *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, db.ext(ctx), dest, db.Rebind(query), args...)
}

// Exec runs a rebound statement, honouring a transaction on ctx.
func (db *DB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := db.ext(ctx).ExecContext(ctx, db.Rebind(query), args...)
	return err
}
