// Package db defines the entity store: generic CRUD over an external object store.
package db

import (
	"context"
	"fmt"

	"github.com/labstack/gommon/log"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
	xe "github.com/opst/knitdao/pkg/errors"
)

// Interface is the store of entities E identified by K.
//
// E is a pointer to an entity struct.
type Interface[K comparable, E any] interface {
	// Find returns the entity with the identity.
	//
	// When no entities are found, it returns (nil, nil). Absence is not an error.
	Find(ctx context.Context, id K) (E, error)

	// FindAll returns all entities, in no particular order.
	FindAll(ctx context.Context) ([]E, error)

	// Count returns the number of entities.
	Count(ctx context.Context) (int64, error)

	// FindByIds returns entities having one of ids, keyed by identity, in one round trip.
	//
	// Identities not found are absent from the result.
	// When ids is empty, it returns an empty map without talking to the object store.
	FindByIds(ctx context.Context, ids []K) (map[K]E, error)

	// Persist stores the entity.
	//
	// If the identity of e is nil, e is inserted and the identity assigned by the object
	// store is written back into e. Otherwise e is updated, and when no entities have
	// the identity, it returns an error wrapping ErrMissing.
	Persist(ctx context.Context, e E) error

	// Remove deletes the entity.
	//
	// If e has no identity or is not stored, it returns an error wrapping ErrMissing.
	Remove(ctx context.Context, e E) error
}

// Generic is the store not specialized with any entity type.
//
// Untyped lookups cannot know what to look for, so Find, FindAll and Count always
// fail with ErrNotImplemented. Use a store specialized with entity type instead.
type Generic struct {
	logger *log.Logger
}

// NewGeneric returns a Generic. If logger is nil, a default logger is used.
func NewGeneric(logger *log.Logger) *Generic {
	if logger == nil {
		logger = log.New("knitdao/store")
	}
	return &Generic{logger: logger}
}

func (g *Generic) notImplemented(op string) error {
	err := xe.WrapWithNote(op, domerr.ErrNotImplemented)
	g.logger.Error(fmt.Sprintf("%s is called on the unspecialized store", op))
	return err
}

func (g *Generic) Find(ctx context.Context, id any) (any, error) {
	return nil, g.notImplemented("Find")
}

func (g *Generic) FindAll(ctx context.Context) ([]any, error) {
	return nil, g.notImplemented("FindAll")
}

func (g *Generic) Count(ctx context.Context) (int64, error) {
	return 0, g.notImplemented("Count")
}
