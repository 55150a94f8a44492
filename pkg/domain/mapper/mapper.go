// Package mapper converts entities into DTOs and back.
//
// Converting DTOs into entities reconciles them with the store: DTOs which are not new
// (see model.IsNew) are overlaid onto the stored entities of their identity, so that
// saving the result updates those entities.
//
// ToEntityList does it for many DTOs with at most one FindByIds.
package mapper

import (
	"context"
	"reflect"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/pkg/domain/binding"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	"github.com/opst/knitdao/pkg/domain/mapper/fields"
	"github.com/opst/knitdao/pkg/domain/model"
	"github.com/opst/knitdao/pkg/domain/store/db"
	"github.com/opst/knitdao/pkg/domain/tx"
	xe "github.com/opst/knitdao/pkg/errors"
)

// NotFoundPolicy decides what a DTO which is not new but has no stored entity becomes.
type NotFoundPolicy int

const (
	// Upsert converts the DTO into a new entity without identity.
	// Saving it inserts a record, even if the record of the identity was removed.
	Upsert NotFoundPolicy = iota

	// Strict fails the conversion with ErrMissing.
	Strict
)

func (p NotFoundPolicy) String() string {
	switch p {
	case Upsert:
		return "upsert"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// DuplicatePolicy decides how ToEntityList treats DTOs sharing one identity.
type DuplicatePolicy int

const (
	// LastWriteWins overlays all of them in order onto one entity.
	// The entity appears in the result for each of them, and has fields of the last one.
	LastWriteWins DuplicatePolicy = iota

	// RejectDuplicates fails the conversion with ErrDuplicateIdentity before lookup.
	RejectDuplicates
)

func (p DuplicatePolicy) String() string {
	switch p {
	case LastWriteWins:
		return "lastWriteWins"
	case RejectDuplicates:
		return "reject"
	default:
		return "unknown"
	}
}

type options struct {
	notFound   NotFoundPolicy
	duplicates DuplicatePolicy
	scope      tx.Scope
	logger     *log.Logger
}

type Option func(*options) *options

func WithNotFoundPolicy(p NotFoundPolicy) Option {
	return func(o *options) *options {
		o.notFound = p
		return o
	}
}

func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(o *options) *options {
		o.duplicates = p
		return o
	}
}

// WithScope makes lookups run in read-only scopes of s.
//
// Without this, lookups run in the transaction carried by the context, if any.
func WithScope(s tx.Scope) Option {
	return func(o *options) *options {
		o.scope = s
		return o
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *options) *options {
		o.logger = logger
		return o
	}
}

// Mapper converts E (pointer to entity) and D (pointer to DTO) each other.
type Mapper[K comparable, E any, D model.Model[K]] struct {
	store   db.Interface[K, E]
	copier  fields.Copier
	binding binding.Binding

	notFound   NotFoundPolicy
	duplicates DuplicatePolicy
	scope      tx.Scope
	logger     *log.Logger
}

// New returns a Mapper looking up entities from store and copying fields with copier.
//
// Both of E and D should be pointers to struct, and E should have identity *K.
// Otherwise, it returns *binding.TypeResolutionError.
func New[K comparable, E any, D model.Model[K]](store db.Interface[K, E], copier fields.Copier, opts ...Option) (*Mapper[K, E, D], error) {
	o := &options{
		notFound:   Upsert,
		duplicates: LastWriteWins,
		logger:     log.New("knitdao/mapper"),
	}
	for _, opt := range opts {
		o = opt(o)
	}

	b, err := binding.Pair[E, D]()
	if err != nil {
		o.logger.Errorf("mapper is not resolved: %v", err)
		return nil, err
	}
	if err := b.RequirePointer(); err != nil {
		o.logger.Errorf("mapper is not resolved: %v", err)
		return nil, err
	}
	if dt := reflect.TypeOf((*D)(nil)).Elem(); dt.Kind() != reflect.Pointer {
		err := &binding.TypeResolutionError{Role: "dto", Type: dt, Reason: "should be a pointer to struct"}
		o.logger.Errorf("mapper is not resolved: %v", err)
		return nil, err
	}
	if err := binding.RequireIdentity[K](b); err != nil {
		o.logger.Errorf("mapper is not resolved: %v", err)
		return nil, err
	}

	return &Mapper[K, E, D]{
		store:      store,
		copier:     copier,
		binding:    b,
		notFound:   o.notFound,
		duplicates: o.duplicates,
		scope:      o.scope,
		logger:     o.logger,
	}, nil
}

func isNil[T any](v T) bool {
	rv := reflect.ValueOf(v)
	return !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil())
}

func (m *Mapper[K, E, D]) lookup(ctx context.Context, f func(context.Context) error) error {
	if m.scope == nil {
		return f(ctx)
	}
	return m.scope.ReadOnly(ctx, f)
}

// ToDto returns a new DTO filled with fields of e. nil is converted into nil.
func (m *Mapper[K, E, D]) ToDto(e E) (D, error) {
	if isNil(e) {
		return *new(D), nil
	}
	d := m.binding.NewDto().(D)
	if err := m.copier.Copy(e, d); err != nil {
		return *new(D), xe.Wrap(err)
	}
	return d, nil
}

// ToDtoList converts each entity with ToDto, in order.
func (m *Mapper[K, E, D]) ToDtoList(es []E) ([]D, error) {
	ret := make([]D, 0, len(es))
	for _, e := range es {
		d, err := m.ToDto(e)
		if err != nil {
			return nil, err
		}
		ret = append(ret, d)
	}
	return ret, nil
}

// ToEntity converts d into an entity. nil is converted into nil.
//
// When d is not new, fields of d are overlaid onto the stored entity of the identity.
// When no such entities are stored, it follows the NotFoundPolicy.
// When d is new, it returns a new entity without identity, filled with fields of d.
func (m *Mapper[K, E, D]) ToEntity(ctx context.Context, d D) (E, error) {
	if isNil(d) {
		return *new(E), nil
	}
	if model.IsNew[K](d) {
		return m.newEntity(d)
	}

	id := *d.Identity()
	var found E
	if err := m.lookup(ctx, func(ctx context.Context) error {
		f, err := m.store.Find(ctx, id)
		found = f
		return err
	}); err != nil {
		return *new(E), xe.Wrap(err)
	}
	if isNil(found) {
		return m.notStored(id, d)
	}
	return m.overlay(d, found)
}

// ToEntityList converts DTOs into entities, in order.
//
// The result is the same as ToEntity for each, but entities of not-new DTOs are looked up
// with one FindByIds. When all DTOs are new (or nil), the store is not touched.
func (m *Mapper[K, E, D]) ToEntityList(ctx context.Context, ds []D) ([]E, error) {
	index := map[K]D{}
	for _, d := range ds {
		if isNil(d) || model.IsNew[K](d) {
			continue
		}
		id := *d.Identity()
		if _, ok := index[id]; ok && m.duplicates == RejectDuplicates {
			return nil, xe.Errorf("%s %v: %w", m.binding.Table(), id, domerr.ErrDuplicateIdentity)
		}
		index[id] = d
	}

	found := map[K]E{}
	if len(index) != 0 {
		ids := make([]K, 0, len(index))
		for _, d := range ds {
			if isNil(d) || model.IsNew[K](d) {
				continue
			}
			if _, ok := index[*d.Identity()]; ok {
				ids = append(ids, *d.Identity())
				delete(index, *d.Identity())
			}
		}
		m.logger.Debugf("%s: looking up %d entities for %d dtos", m.binding.Table(), len(ids), len(ds))

		if err := m.lookup(ctx, func(ctx context.Context) error {
			f, err := m.store.FindByIds(ctx, ids)
			found = f
			return err
		}); err != nil {
			return nil, xe.Wrap(err)
		}
	}

	ret := make([]E, 0, len(ds))
	for _, d := range ds {
		var e E
		var err error
		switch {
		case isNil(d):
		case model.IsNew[K](d):
			e, err = m.newEntity(d)
		default:
			id := *d.Identity()
			if f, ok := found[id]; ok && !isNil(f) {
				e, err = m.overlay(d, f)
			} else {
				e, err = m.notStored(id, d)
			}
		}
		if err != nil {
			return nil, err
		}
		ret = append(ret, e)
	}
	return ret, nil
}

func (m *Mapper[K, E, D]) overlay(d D, e E) (E, error) {
	if err := m.copier.Copy(d, e); err != nil {
		return *new(E), xe.Wrap(err)
	}
	return e, nil
}

// newEntity returns a blank entity overlaid with d, without identity.
func (m *Mapper[K, E, D]) newEntity(d D) (E, error) {
	e := m.binding.NewEntity().(E)
	if err := m.copier.Copy(d, e); err != nil {
		return *new(E), xe.Wrap(err)
	}
	if err := m.binding.SetIdentity(e, nil); err != nil {
		return *new(E), xe.Wrap(err)
	}
	return e, nil
}

func (m *Mapper[K, E, D]) notStored(id K, d D) (E, error) {
	if m.notFound == Strict {
		return *new(E), xe.Errorf("%s %v: %w", m.binding.Table(), id, domerr.ErrMissing)
	}
	m.logger.Debugf("%s %v is not stored. it is converted as new", m.binding.Table(), id)
	return m.newEntity(d)
}
