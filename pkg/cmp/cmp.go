// Package cmp has comparators mainly for tests.
package cmp

type BiPredicator[V any, U any] func(a V, b U) bool

// a == b as BiPredicator function
func EqEq[T comparable](a, b T) bool {
	return a == b
}

// *a == *b as BiPredicator function. Two nils are equal.
func PEqEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// pred(*a, *b) as BiPredicator function. Two nils are equal.
func PEqualWith[T any](a, b *T, pred func(T, T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return pred(*a, *b)
}
