// Package sqlxrepos implements the repositories over PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/examoffice/core"
)

// serialization_failure: the transaction lost a conflict under SERIALIZABLE and can be retried
const codeSerializationFailure = "40001"

const maxTxAttempts = 3

type txKey struct{}

// DB hands repositories the transaction carried by the context, or the pool outside transactions.
type DB struct {
	db *sqlx.DB
}

var _ core.Transactor = (*DB)(nil)

func New(db *sqlx.DB) *DB {
	return &DB{db: db}
}

func (db *DB) exec(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.db
}

// WithinTx runs fn in a SERIALIZABLE transaction, retried when it loses a serialization conflict.
// A nested call joins the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if err = db.runTx(ctx, fn); !isSerializationFailure(err) {
			return err
		}
	}
	return errors.Wrapf(err, "giving up after %d attempts", maxTxAttempts)
}

func (db *DB) runTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := db.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeSerializationFailure
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

// notFound maps sql.ErrNoRows to the entity's sentinel.
func notFound(err error, sentinel error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}
