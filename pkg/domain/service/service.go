// Package service provides the per-entity-type facade over an entity store.
//
// Reads run in read-only scopes, and writes run in read-write scopes.
package service

import (
	"context"

	"github.com/labstack/gommon/log"
	"github.com/opst/knitdao/pkg/domain/binding"
	"github.com/opst/knitdao/pkg/domain/store/db"
	"github.com/opst/knitdao/pkg/domain/tx"
	xe "github.com/opst/knitdao/pkg/errors"
)

type Service[K comparable, E any] struct {
	store   db.Interface[K, E]
	scope   tx.Scope
	binding binding.Binding
	logger  *log.Logger
}

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

// New returns a Service of E.
//
// E should be a pointer to struct with identity *K. Otherwise, it returns *binding.TypeResolutionError.
func New[K comparable, E any](store db.Interface[K, E], scope tx.Scope, opts ...Option) (*Service[K, E], error) {
	o := &options{logger: log.New("knitdao/service")}
	for _, opt := range opts {
		o = opt(o)
	}

	b, err := binding.Of[E]()
	if err == nil {
		err = b.RequirePointer()
	}
	if err == nil {
		err = binding.RequireIdentity[K](b)
	}
	if err != nil {
		o.logger.Errorf("service is not resolved: %v", err)
		return nil, err
	}

	return &Service[K, E]{store: store, scope: scope, binding: b, logger: o.logger}, nil
}

// Binding returns the resolved types of the service.
func (s *Service[K, E]) Binding() binding.Binding {
	return s.binding
}

// Get returns the entity with the identity, or nil when it is not found.
func (s *Service[K, E]) Get(ctx context.Context, id K) (E, error) {
	var ret E
	err := s.scope.ReadOnly(ctx, func(ctx context.Context) error {
		e, err := s.store.Find(ctx, id)
		ret = e
		return err
	})
	if err != nil {
		return *new(E), xe.Wrap(err)
	}
	return ret, nil
}

func (s *Service[K, E]) GetAll(ctx context.Context) ([]E, error) {
	var ret []E
	err := s.scope.ReadOnly(ctx, func(ctx context.Context) error {
		es, err := s.store.FindAll(ctx)
		ret = es
		return err
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return ret, nil
}

func (s *Service[K, E]) Count(ctx context.Context) (int64, error) {
	var ret int64
	err := s.scope.ReadOnly(ctx, func(ctx context.Context) error {
		n, err := s.store.Count(ctx)
		ret = n
		return err
	})
	if err != nil {
		return 0, xe.Wrap(err)
	}
	return ret, nil
}

// Save persists e and returns it. A new entity gets its identity.
func (s *Service[K, E]) Save(ctx context.Context, e E) (E, error) {
	err := s.scope.ReadWrite(ctx, func(ctx context.Context) error {
		return s.store.Persist(ctx, e)
	})
	if err != nil {
		return *new(E), xe.Wrap(err)
	}
	return e, nil
}

// SaveAll persists entities in one read-write scope. If one fails, the scope rolls back.
func (s *Service[K, E]) SaveAll(ctx context.Context, es []E) ([]E, error) {
	err := s.scope.ReadWrite(ctx, func(ctx context.Context) error {
		for _, e := range es {
			if err := s.store.Persist(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}
	s.logger.Debugf("%s: %d entities are saved", s.binding.Table(), len(es))
	return es, nil
}

func (s *Service[K, E]) Delete(ctx context.Context, e E) error {
	err := s.scope.ReadWrite(ctx, func(ctx context.Context) error {
		return s.store.Remove(ctx, e)
	})
	return xe.Wrap(err)
}
