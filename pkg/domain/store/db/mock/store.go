package mock

import (
	"context"
	"errors"

	"github.com/opst/knitdao/pkg/domain/store/db"
)

type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

// Store is a mock of db.Interface.
//
// Methods without Impl panic.
type Store[K comparable, E any] struct {
	Impl struct {
		Find      func(context.Context, K) (E, error)
		FindAll   func(context.Context) ([]E, error)
		Count     func(context.Context) (int64, error)
		FindByIds func(context.Context, []K) (map[K]E, error)
		Persist   func(context.Context, E) error
		Remove    func(context.Context, E) error
	}
	Calls struct {
		Find      CallLog[K]
		FindAll   CallLog[struct{}]
		Count     CallLog[struct{}]
		FindByIds CallLog[[]K]
		Persist   CallLog[E]
		Remove    CallLog[E]
	}
}

func New[K comparable, E any]() *Store[K, E] {
	return &Store[K, E]{}
}

var _ db.Interface[int64, *struct{}] = &Store[int64, *struct{}]{}

func (s *Store[K, E]) Find(ctx context.Context, id K) (E, error) {
	s.Calls.Find = append(s.Calls.Find, id)
	if s.Impl.Find != nil {
		return s.Impl.Find(ctx, id)
	}
	panic(errors.New("it should no be called"))
}

func (s *Store[K, E]) FindAll(ctx context.Context) ([]E, error) {
	s.Calls.FindAll = append(s.Calls.FindAll, struct{}{})
	if s.Impl.FindAll != nil {
		return s.Impl.FindAll(ctx)
	}
	panic(errors.New("it should no be called"))
}

func (s *Store[K, E]) Count(ctx context.Context) (int64, error) {
	s.Calls.Count = append(s.Calls.Count, struct{}{})
	if s.Impl.Count != nil {
		return s.Impl.Count(ctx)
	}
	panic(errors.New("it should no be called"))
}

func (s *Store[K, E]) FindByIds(ctx context.Context, ids []K) (map[K]E, error) {
	s.Calls.FindByIds = append(s.Calls.FindByIds, ids)
	if s.Impl.FindByIds != nil {
		return s.Impl.FindByIds(ctx, ids)
	}
	panic(errors.New("it should no be called"))
}

func (s *Store[K, E]) Persist(ctx context.Context, e E) error {
	s.Calls.Persist = append(s.Calls.Persist, e)
	if s.Impl.Persist != nil {
		return s.Impl.Persist(ctx, e)
	}
	panic(errors.New("it should no be called"))
}

func (s *Store[K, E]) Remove(ctx context.Context, e E) error {
	s.Calls.Remove = append(s.Calls.Remove, e)
	if s.Impl.Remove != nil {
		return s.Impl.Remove(ctx, e)
	}
	panic(errors.New("it should no be called"))
}
