// Package pool extracts the subset of pgxpool used by stores and transactional scopes.
//
// Stores depend on Queryer only. Scopes depend on BeginTx. Tests replace any of them
// with proxies (see package proxy) or fakes.
package pool

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// something sending SQL.
//
// `*pgxpool.Pool`, `*pgxpool.Conn` and `pgx.Tx` have these methods.
type Queryer interface {
	// send SQL command which does not have result rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// send SQL command which has result rows.
	//
	// Caller should Close rows.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// send SQL command which has just single result row.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// something begins SQL transaction with options.
type BeginTx interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error)
}

// transaction in progress.
//
// `pgx.Tx` does NOT implement this directly, because golang lacks covariance of return
// types. Begin one via Pool or Conn and you get Tx.
type Tx interface {
	Queryer

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type pgxTx struct {
	base pgx.Tx
}

var _ Tx = &pgxTx{}

func (tx *pgxTx) Commit(ctx context.Context) error {
	return tx.base.Commit(ctx)
}
func (tx *pgxTx) Rollback(ctx context.Context) error {
	return tx.base.Rollback(ctx)
}
func (tx *pgxTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return tx.base.Exec(ctx, sql, args...)
}
func (tx *pgxTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return tx.base.Query(ctx, sql, args...)
}
func (tx *pgxTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return tx.base.QueryRow(ctx, sql, args...)
}

// connection acquired from Pool.
//
// Release it when done.
type Conn interface {
	Queryer
	BeginTx

	Release()
}

type pgxPoolConn struct {
	base *pgxpool.Conn
}

var _ Conn = &pgxPoolConn{}

func (c *pgxPoolConn) BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error) {
	tx, err := c.base.BeginTx(ctx, opts)
	if tx == nil {
		return nil, err
	}
	return &pgxTx{tx}, err
}
func (c *pgxPoolConn) Release() {
	c.base.Release()
}
func (c *pgxPoolConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.base.Exec(ctx, sql, args...)
}
func (c *pgxPoolConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.base.Query(ctx, sql, args...)
}
func (c *pgxPoolConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.base.QueryRow(ctx, sql, args...)
}

// interface extracted from `*pgxpool.Pool`.
//
// This is JUST A SUBSET. Declare more methods when you need.
type Pool interface {
	Queryer
	BeginTx

	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
}

type pgxPool struct {
	base *pgxpool.Pool
}

var _ Pool = &pgxPool{}

func (p *pgxPool) BeginTx(ctx context.Context, opts pgx.TxOptions) (Tx, error) {
	tx, err := p.base.BeginTx(ctx, opts)
	if tx == nil {
		return nil, err
	}
	return &pgxTx{tx}, err
}
func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.base.Acquire(ctx)
	if conn == nil {
		return nil, err
	}
	return &pgxPoolConn{conn}, err
}
func (p *pgxPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.base.Exec(ctx, sql, args...)
}
func (p *pgxPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.base.Query(ctx, sql, args...)
}
func (p *pgxPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.base.QueryRow(ctx, sql, args...)
}
func (p *pgxPool) Ping(ctx context.Context) error {
	return p.base.Ping(ctx)
}

func Wrap(p *pgxpool.Pool) Pool {
	return &pgxPool{p}
}

// Connect opens a new pool for connString and wraps it.
//
// The returned close func releases all connections of the pool.
func Connect(ctx context.Context, connString string) (Pool, func(), error) {
	p, err := pgxpool.Connect(ctx, connString)
	if err != nil {
		return nil, nil, err
	}
	return Wrap(p), p.Close, nil
}
