// Package model defines the capability shared by entities and data transfer objects.
package model

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Model is something identified by K.
//
// Identity returns nil while the model is not backed by a stored entity.
type Model[K comparable] interface {
	Identity() *K
}

// IsNew tells whether m is not backed by a stored entity yet.
//
// It is true when the identity is nil, and ALSO when the identity is the zero value of K.
// So a DTO decoded from `{"id": 0}` is new, as same as `{}`.
func IsNew[K comparable](m Model[K]) bool {
	id := m.Identity()
	return id == nil || *id == *new(K)
}

// ToMap converts m into a property map keyed with JSON names.
//
// The map has the key "new" holding IsNew(m) in addition to properties of m.
// Keys in excludes are removed from the map, "new" included.
// Numbers are held as json.Number.
func ToMap[K comparable](m Model[K], excludes ...string) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	ret := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&ret); err != nil {
		return nil, err
	}
	ret["new"] = IsNew(m)

	for _, ex := range excludes {
		delete(ret, ex)
	}
	return ret, nil
}
