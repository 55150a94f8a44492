// Package proxy wraps pool.Pool and emits events around SQL round trips.
//
// It is used by tests to observe how many times a component talks to the database,
// and whether its transaction is committed or rolled back.
package proxy

import (
	"context"
	"sync/atomic"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	kpool "github.com/opst/knitdao/pkg/conn/db/postgres/pool"
)

type Callback func()

type event struct {
	before []Callback
	after  []Callback
	chain  *event
}

// register callbacks invoked before the event.
func (e *event) Before(cb ...Callback) *event {
	e.before = append(e.before, cb...)
	return e
}

// register callbacks invoked after the event.
func (e *event) After(cb ...Callback) *event {
	e.after = append(e.after, cb...)
	return e
}

func (e *event) invoke(f func()) {
	e.invokeBefore()
	defer e.invokeAfter()
	f()
}

func (e *event) invokeBefore() {
	if e == nil {
		return
	}
	e.chain.invokeBefore()
	for _, cb := range e.before {
		cb()
	}
}

func (e *event) invokeAfter() {
	if e == nil {
		return
	}
	for _, cb := range e.after {
		cb()
	}
	e.chain.invokeAfter()
}

// Events observed by proxies.
//
//   - Query: Exec, Query and QueryRow, on the pool, connections and transactions.
//   - Begin: a transaction is started.
//   - Commit, Rollback: a transaction is finished.
//   - ExitTx: emitted with Commit and with Rollback.
//
// The order of callbacks on commit is
// "before ExitTx", "before Commit", "after Commit" then "after ExitTx". Rollback is same.
type Events struct {
	Query    *event
	Begin    *event
	Commit   *event
	Rollback *event
	ExitTx   *event
}

func NewEvents() *Events {
	exitTx := new(event)
	return &Events{
		Query:    new(event),
		Begin:    new(event),
		Commit:   &event{chain: exitTx},
		Rollback: &event{chain: exitTx},
		ExitTx:   exitTx,
	}
}

// Counter counts events.
type Counter struct {
	queries   atomic.Int64
	begins    atomic.Int64
	commits   atomic.Int64
	rollbacks atomic.Int64
}

// CountOn registers counting callbacks onto ev.
func CountOn(ev *Events) *Counter {
	c := &Counter{}
	ev.Query.After(func() { c.queries.Add(1) })
	ev.Begin.After(func() { c.begins.Add(1) })
	ev.Commit.After(func() { c.commits.Add(1) })
	ev.Rollback.After(func() { c.rollbacks.Add(1) })
	return c
}

// number of queries sent since created or last Reset.
func (c *Counter) Queries() int64 {
	return c.queries.Load()
}

func (c *Counter) Begins() int64 {
	return c.begins.Load()
}

func (c *Counter) Commits() int64 {
	return c.commits.Load()
}

func (c *Counter) Rollbacks() int64 {
	return c.rollbacks.Load()
}

func (c *Counter) Reset() {
	c.queries.Store(0)
	c.begins.Store(0)
	c.commits.Store(0)
	c.rollbacks.Store(0)
}

// Pool is a proxy of pool.Pool.
//
// Event handlers registered to Events() are shared with connections and transactions
// created from this pool.
type Pool struct {
	Base   kpool.Pool
	events *Events
}

var _ kpool.Pool = &Pool{}

func Wrap(p kpool.Pool) *Pool {
	return &Pool{Base: p, events: NewEvents()}
}

func (p *Pool) Events() *Events {
	return p.events
}

func (p *Pool) Acquire(ctx context.Context) (kpool.Conn, error) {
	conn, err := p.Base.Acquire(ctx)
	if conn == nil {
		return nil, err
	}
	return &Conn{Base: conn, events: p.events}, err
}

func (p *Pool) BeginTx(ctx context.Context, opts pgx.TxOptions) (tx kpool.Tx, err error) {
	p.events.Begin.invoke(func() {
		tx, err = p.Base.BeginTx(ctx, opts)
	})
	if tx == nil {
		return nil, err
	}
	return &Tx{Base: tx, events: p.events}, err
}

func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (tag pgconn.CommandTag, err error) {
	p.events.Query.invoke(func() {
		tag, err = p.Base.Exec(ctx, sql, args...)
	})
	return
}

func (p *Pool) Query(ctx context.Context, sql string, args ...any) (rows pgx.Rows, err error) {
	p.events.Query.invoke(func() {
		rows, err = p.Base.Query(ctx, sql, args...)
	})
	return
}

func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) (row pgx.Row) {
	p.events.Query.invoke(func() {
		row = p.Base.QueryRow(ctx, sql, args...)
	})
	return
}

func (p *Pool) Ping(ctx context.Context) error {
	return p.Base.Ping(ctx)
}

type Conn struct {
	Base   kpool.Conn
	events *Events
}

var _ kpool.Conn = &Conn{}

func (c *Conn) BeginTx(ctx context.Context, opts pgx.TxOptions) (tx kpool.Tx, err error) {
	c.events.Begin.invoke(func() {
		tx, err = c.Base.BeginTx(ctx, opts)
	})
	if tx == nil {
		return nil, err
	}
	return &Tx{Base: tx, events: c.events}, err
}

func (c *Conn) Release() {
	c.Base.Release()
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (tag pgconn.CommandTag, err error) {
	c.events.Query.invoke(func() {
		tag, err = c.Base.Exec(ctx, sql, args...)
	})
	return
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (rows pgx.Rows, err error) {
	c.events.Query.invoke(func() {
		rows, err = c.Base.Query(ctx, sql, args...)
	})
	return
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) (row pgx.Row) {
	c.events.Query.invoke(func() {
		row = c.Base.QueryRow(ctx, sql, args...)
	})
	return
}

type Tx struct {
	Base   kpool.Tx
	events *Events
}

var _ kpool.Tx = &Tx{}

func (tx *Tx) Commit(ctx context.Context) (err error) {
	tx.events.Commit.invoke(func() {
		err = tx.Base.Commit(ctx)
	})
	return
}

func (tx *Tx) Rollback(ctx context.Context) (err error) {
	tx.events.Rollback.invoke(func() {
		err = tx.Base.Rollback(ctx)
	})
	return
}

func (tx *Tx) Exec(ctx context.Context, sql string, args ...any) (tag pgconn.CommandTag, err error) {
	tx.events.Query.invoke(func() {
		tag, err = tx.Base.Exec(ctx, sql, args...)
	})
	return
}

func (tx *Tx) Query(ctx context.Context, sql string, args ...any) (rows pgx.Rows, err error) {
	tx.events.Query.invoke(func() {
		rows, err = tx.Base.Query(ctx, sql, args...)
	})
	return
}

func (tx *Tx) QueryRow(ctx context.Context, sql string, args ...any) (row pgx.Row) {
	tx.events.Query.invoke(func() {
		row = tx.Base.QueryRow(ctx, sql, args...)
	})
	return
}
