// Package tx provides transactional scopes.
//
// A scope runs a function in a transaction carried by the context passed to the function.
// Stores pick up the transaction with FromContext.
//
// Scopes join the transaction in progress ("required" propagation): only the outermost
// scope begins, commits and rolls back.
package tx

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/labstack/gommon/log"
	kpool "github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	xe "github.com/opst/knitdao/pkg/errors"
)

// Scope runs functions in transactions.
type Scope interface {
	// ReadOnly runs f in a read-only transaction.
	ReadOnly(ctx context.Context, f func(context.Context) error) error

	// ReadWrite runs f in a read-write transaction.
	//
	// If ctx carries a read-only transaction, it fails with ErrReadOnlyScope without calling f.
	ReadWrite(ctx context.Context, f func(context.Context) error) error
}

type txKey struct{}

type carried struct {
	tx       kpool.Tx
	readOnly bool
}

// FromContext returns the transaction carried by ctx.
func FromContext(ctx context.Context) (kpool.Tx, bool) {
	c, ok := ctx.Value(txKey{}).(*carried)
	if !ok {
		return nil, false
	}
	return c.tx, true
}

// ReadOnlyIn tells ctx carries a read-only transaction.
func ReadOnlyIn(ctx context.Context) bool {
	c, ok := ctx.Value(txKey{}).(*carried)
	return ok && c.readOnly
}

type Option func(*pgScope) *pgScope

func WithLogger(logger *log.Logger) Option {
	return func(s *pgScope) *pgScope {
		s.logger = logger
		return s
	}
}

type pgScope struct {
	pool   kpool.BeginTx
	logger *log.Logger
}

// Postgres returns a Scope beginning transactions on pool.
func Postgres(pool kpool.BeginTx, opts ...Option) Scope {
	s := &pgScope{pool: pool, logger: log.New("knitdao/tx")}
	for _, opt := range opts {
		s = opt(s)
	}
	return s
}

func (s *pgScope) ReadOnly(ctx context.Context, f func(context.Context) error) error {
	return s.run(ctx, pgx.ReadOnly, f)
}

func (s *pgScope) ReadWrite(ctx context.Context, f func(context.Context) error) error {
	return s.run(ctx, pgx.ReadWrite, f)
}

func (s *pgScope) run(ctx context.Context, mode pgx.TxAccessMode, f func(context.Context) error) (err error) {
	if c, ok := ctx.Value(txKey{}).(*carried); ok {
		if c.readOnly && mode == pgx.ReadWrite {
			return xe.Wrap(domerr.ErrReadOnlyScope)
		}
		return f(ctx)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: mode})
	if err != nil {
		return xe.Wrap(err)
	}
	s.logger.Debugf("begin transaction (%s)", mode)

	finished := false
	defer func() {
		if finished {
			return
		}
		if rerr := tx.Rollback(ctx); rerr != nil {
			s.logger.Warnf("rollback failed: %v", rerr)
		}
		s.logger.Debugf("rollback transaction (%s)", mode)
	}()

	if err := f(context.WithValue(ctx, txKey{}, &carried{tx: tx, readOnly: mode == pgx.ReadOnly})); err != nil {
		return err
	}

	finished = true
	if err := tx.Commit(ctx); err != nil {
		return xe.Wrap(err)
	}
	s.logger.Debugf("commit transaction (%s)", mode)
	return nil
}

type none struct{}

// None returns a Scope which calls functions as they are, without transactions.
//
// It is for stores which have no transactions, like DynamoDB.
func None() Scope {
	return none{}
}

func (none) ReadOnly(ctx context.Context, f func(context.Context) error) error {
	return f(ctx)
}

func (none) ReadWrite(ctx context.Context, f func(context.Context) error) error {
	return f(ctx)
}
