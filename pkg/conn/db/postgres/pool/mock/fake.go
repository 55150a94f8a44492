// Package mock provides in-memory fakes of pool.Pool, pool.Tx and pgx.Rows.
//
// They speak no wire protocol. Rows are given as Go values and scanned by reflection.
package mock

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/knitdao/pkg/conn/db/postgres/pool"
)

// Sent is a SQL statement passed to a fake.
type Sent struct {
	SQL  string
	Args []any
}

// Queryer fakes Exec/Query/QueryRow.
//
// Nil Impl funcs answer empty results.
type Queryer struct {
	Impl struct {
		Exec     func(sql string, args ...any) (pgconn.CommandTag, error)
		Query    func(sql string, args ...any) (pgx.Rows, error)
		QueryRow func(sql string, args ...any) pgx.Row
	}
	Sent []Sent
}

var _ kpool.Queryer = &Queryer{}

func (q *Queryer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.Sent = append(q.Sent, Sent{SQL: sql, Args: args})
	if q.Impl.Exec == nil {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	return q.Impl.Exec(sql, args...)
}

func (q *Queryer) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.Sent = append(q.Sent, Sent{SQL: sql, Args: args})
	if q.Impl.Query == nil {
		return &Rows{}, nil
	}
	return q.Impl.Query(sql, args...)
}

func (q *Queryer) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.Sent = append(q.Sent, Sent{SQL: sql, Args: args})
	if q.Impl.QueryRow == nil {
		return &Row{Err: pgx.ErrNoRows}
	}
	return q.Impl.QueryRow(sql, args...)
}

// Tx is a fake transaction.
type Tx struct {
	Queryer

	Options    pgx.TxOptions
	Committed  int
	RolledBack int

	CommitErr   error
	RollbackErr error
}

var _ kpool.Tx = &Tx{}

func (tx *Tx) Commit(context.Context) error {
	tx.Committed += 1
	return tx.CommitErr
}

func (tx *Tx) Rollback(context.Context) error {
	tx.RolledBack += 1
	return tx.RollbackErr
}

// Pool is a fake pool.
//
// Transactions begun are recorded into Began.
// When BeginImpl is nil, a new empty Tx is begun.
type Pool struct {
	Queryer
	BeginImpl func(opts pgx.TxOptions) (*Tx, error)
	Began     []*Tx
	Acquired  int
	Released  int
}

var _ kpool.Pool = &Pool{}

func (p *Pool) BeginTx(_ context.Context, opts pgx.TxOptions) (kpool.Tx, error) {
	tx := &Tx{}
	if p.BeginImpl != nil {
		var err error
		tx, err = p.BeginImpl(opts)
		if err != nil {
			return nil, err
		}
	}
	tx.Options = opts
	p.Began = append(p.Began, tx)
	return tx, nil
}

func (p *Pool) Acquire(context.Context) (kpool.Conn, error) {
	p.Acquired += 1
	return &conn{pool: p}, nil
}

func (p *Pool) Ping(context.Context) error {
	return nil
}

type conn struct {
	pool *Pool
}

func (c *conn) BeginTx(ctx context.Context, opts pgx.TxOptions) (kpool.Tx, error) {
	return c.pool.BeginTx(ctx, opts)
}
func (c *conn) Release() {
	c.pool.Released += 1
}
func (c *conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.pool.Exec(ctx, sql, args...)
}
func (c *conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.pool.Query(ctx, sql, args...)
}
func (c *conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// Rows is a fake result set.
//
// Columns names result columns. Each of Data is a row, values in order of Columns.
type Rows struct {
	Columns []string
	Data    [][]any
	ScanErr error

	cursor int
	closed bool
}

var _ pgx.Rows = &Rows{}

func (r *Rows) Close() {
	r.closed = true
}

func (r *Rows) Closed() bool {
	return r.closed
}

func (r *Rows) Err() error {
	return nil
}

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.CommandTag(fmt.Sprintf("SELECT %d", len(r.Data)))
}

func (r *Rows) FieldDescriptions() []pgproto3.FieldDescription {
	fds := make([]pgproto3.FieldDescription, len(r.Columns))
	for i, c := range r.Columns {
		fds[i] = pgproto3.FieldDescription{Name: []byte(c)}
	}
	return fds
}

func (r *Rows) Next() bool {
	if r.closed || len(r.Data) <= r.cursor {
		r.closed = true
		return false
	}
	r.cursor += 1
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	return assign(r.Data[r.cursor-1], dest)
}

func (r *Rows) Values() ([]any, error) {
	row := r.Data[r.cursor-1]
	ret := make([]any, len(row))
	copy(ret, row)
	return ret, nil
}

func (r *Rows) RawValues() [][]byte {
	return nil
}

// Row is a fake result of QueryRow.
type Row struct {
	Values []any
	Err    error
}

var _ pgx.Row = &Row{}

func (r *Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("%d values for %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		rd := reflect.ValueOf(d)
		if rd.Kind() != reflect.Pointer || rd.IsNil() {
			return fmt.Errorf("destination #%d is not a pointer: %T", i, d)
		}
		to := rd.Elem()
		if values[i] == nil {
			to.Set(reflect.Zero(to.Type()))
			continue
		}

		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(to.Type()):
			to.Set(v)
		case to.Kind() == reflect.Pointer && v.Type().AssignableTo(to.Type().Elem()):
			p := reflect.New(to.Type().Elem())
			p.Elem().Set(v)
			to.Set(p)
		case v.CanConvert(to.Type()):
			to.Set(v.Convert(to.Type()))
		default:
			return fmt.Errorf("value #%d (%T) cannot be scanned into %s", i, values[i], to.Type())
		}
	}
	return nil
}
