// Package postgres implements the entity store on PostgreSQL.
//
// Queries run on the transaction carried by the context (see package tx),
// or on the pool when no transactions are carried.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/labstack/gommon/log"
	kpool "github.com/opst/knitdao/pkg/conn/db/postgres/pool"
	"github.com/opst/knitdao/pkg/conn/db/postgres/scanner"
	"github.com/opst/knitdao/pkg/domain/binding"
	dberr "github.com/opst/knitdao/pkg/domain/errors/dberrors/postgres"
	"github.com/opst/knitdao/pkg/domain/store/db"
	"github.com/opst/knitdao/pkg/domain/tx"
	xe "github.com/opst/knitdao/pkg/errors"
)

type Store[K comparable, E any] struct {
	pool    kpool.Queryer
	binding binding.Binding
	scanner scanner.Scanner[E]
	logger  *log.Logger

	selectAll string
	selectOne string
	selectIn  string
	count     string
	insert    string
	update    string
	delete    string

	// columns except identity, in the order of placeholders of insert and update.
	values []string
}

var _ db.Interface[int64, *struct{ ID *int64 }] = &Store[int64, *struct{ ID *int64 }]{}

type Option func(*options) *options

type options struct {
	logger *log.Logger
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) *options {
		o.logger = logger
		return o
	}
}

// New returns a store of E on pool.
//
// b should be the binding of E, and identity of E should be *K.
// Otherwise, it returns *binding.TypeResolutionError.
func New[K comparable, E any](pool kpool.Queryer, b binding.Binding, opts ...Option) (*Store[K, E], error) {
	o := &options{logger: log.New("knitdao/postgres")}
	for _, opt := range opts {
		o = opt(o)
	}

	resolved, err := binding.Of[E]()
	if err != nil {
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}
	if resolved.Entity() != b.Entity() {
		err := &binding.TypeResolutionError{
			Role: "entity", Type: resolved.Entity(),
			Reason: fmt.Sprintf("binding is made for %s", b.Entity()),
		}
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}
	if err := b.RequirePointer(); err != nil {
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}
	if err := binding.RequireIdentity[K](b); err != nil {
		o.logger.Errorf("store is not resolved: %v", err)
		return nil, err
	}

	table := quote(b.Table())
	id := quote(b.IdentityColumn())
	cols := b.Columns()
	projected := mapQuote(cols)
	if natural := scanner.Column(b.IdentityField()); natural != b.IdentityColumn() {
		for i, c := range cols {
			if c == b.IdentityColumn() {
				projected[i] = fmt.Sprintf(`%s as %s`, id, quote(natural))
			}
		}
	}
	projection := strings.Join(projected, ", ")

	values := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != b.IdentityColumn() {
			values = append(values, c)
		}
	}
	placeholders := make([]string, len(values))
	sets := make([]string, len(values))
	for i, c := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		sets[i] = fmt.Sprintf("%s = $%d", quote(c), i+1)
	}

	s := &Store[K, E]{
		pool:    pool,
		binding: b,
		scanner: scanner.New[E](),
		logger:  o.logger,
		values:  values,

		selectAll: fmt.Sprintf(`select %s from %s`, projection, table),
		selectOne: fmt.Sprintf(`select %s from %s where %s = $1`, projection, table, id),
		selectIn:  fmt.Sprintf(`select %s from %s where %s = any($1)`, projection, table, id),
		count:     fmt.Sprintf(`select count(*) from %s`, table),
		delete:    fmt.Sprintf(`delete from %s where %s = $1`, table, id),
	}
	if len(values) == 0 {
		s.insert = fmt.Sprintf(`insert into %s default values returning %s`, table, id)
		s.update = fmt.Sprintf(`select 1 from %s where %s = $1`, table, id)
	} else {
		s.insert = fmt.Sprintf(
			`insert into %s (%s) values (%s) returning %s`,
			table, strings.Join(mapQuote(values), ", "), strings.Join(placeholders, ", "), id,
		)
		s.update = fmt.Sprintf(
			`update %s set %s where %s = $%d`,
			table, strings.Join(sets, ", "), id, len(values)+1,
		)
	}

	return s, nil
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func mapQuote(names []string) []string {
	ret := make([]string, len(names))
	for i, n := range names {
		ret[i] = quote(n)
	}
	return ret
}

func (s *Store[K, E]) conn(ctx context.Context) kpool.Queryer {
	if t, ok := tx.FromContext(ctx); ok {
		return t
	}
	return s.pool
}

func (s *Store[K, E]) Find(ctx context.Context, id K) (E, error) {
	s.logger.Debugf("%s: find %v", s.binding.Table(), id)
	found, err := s.scanner.QueryAll(ctx, s.conn(ctx), s.selectOne, id)
	if err != nil {
		return *new(E), xe.Wrap(err)
	}
	switch len(found) {
	case 0:
		return *new(E), nil
	case 1:
		return found[0], nil
	default:
		return *new(E), xe.Wrap(dberr.TooMuch{
			Table: s.binding.Table(), Identity: fmt.Sprint(id), Expected: 1,
		})
	}
}

func (s *Store[K, E]) FindAll(ctx context.Context) ([]E, error) {
	s.logger.Debugf("%s: find all", s.binding.Table())
	found, err := s.scanner.QueryAll(ctx, s.conn(ctx), s.selectAll)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return found, nil
}

func (s *Store[K, E]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn(ctx).QueryRow(ctx, s.count).Scan(&n); err != nil {
		return 0, xe.Wrap(err)
	}
	return n, nil
}

func (s *Store[K, E]) FindByIds(ctx context.Context, ids []K) (map[K]E, error) {
	if len(ids) == 0 {
		return map[K]E{}, nil
	}
	s.logger.Debugf("%s: find by %d ids", s.binding.Table(), len(ids))

	found, err := s.scanner.QueryAll(ctx, s.conn(ctx), s.selectIn, ids)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	ret := make(map[K]E, len(found))
	for _, e := range found {
		id, ok := s.binding.IdentityOf(e)
		if !ok {
			return nil, xe.Errorf("%s: found entity without identity", s.binding.Table())
		}
		ret[id.(K)] = e
	}
	return ret, nil
}

func (s *Store[K, E]) Persist(ctx context.Context, e E) error {
	args, err := s.binding.Values(e, s.values...)
	if err != nil {
		return xe.Wrap(err)
	}

	id, stored := s.binding.IdentityOf(e)
	if !stored {
		s.logger.Debugf("%s: insert", s.binding.Table())
		newId := new(K)
		if err := s.conn(ctx).QueryRow(ctx, s.insert, args...).Scan(newId); err != nil {
			return xe.Wrap(dberr.AsConflict(s.binding.Table(), err))
		}
		return xe.Wrap(s.binding.SetIdentity(e, *newId))
	}

	s.logger.Debugf("%s: update %v", s.binding.Table(), id)
	if len(s.values) == 0 {
		var one int
		if err := s.conn(ctx).QueryRow(ctx, s.update, id).Scan(&one); err != nil {
			return xe.Wrap(s.missingOr(id, err))
		}
		return nil
	}
	tag, err := s.conn(ctx).Exec(ctx, s.update, append(args, id)...)
	if err != nil {
		return xe.Wrap(dberr.AsConflict(s.binding.Table(), err))
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(s.missing(id))
	}
	return nil
}

func (s *Store[K, E]) Remove(ctx context.Context, e E) error {
	id, stored := s.binding.IdentityOf(e)
	if !stored {
		return xe.Wrap(s.missing("(no identity)"))
	}

	s.logger.Debugf("%s: delete %v", s.binding.Table(), id)
	tag, err := s.conn(ctx).Exec(ctx, s.delete, id)
	if err != nil {
		return xe.Wrap(dberr.AsConflict(s.binding.Table(), err))
	}
	if tag.RowsAffected() == 0 {
		return xe.Wrap(s.missing(id))
	}
	return nil
}

func (s *Store[K, E]) missing(id any) error {
	return dberr.Missing{Table: s.binding.Table(), Identity: fmt.Sprint(id)}
}

func (s *Store[K, E]) missingOr(id any, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return s.missing(id)
	}
	return err
}
