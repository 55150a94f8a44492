package cmp

// check a == b
func MapEq[K comparable, V comparable](a map[K]V, b map[K]V) bool {
	return MapEqWith(a, b, EqEq[V])
}

// check a == b, in context of comparator
func MapEqWith[K comparable, V any, U any](a map[K]V, b map[K]U, comparator BiPredicator[V, U]) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !comparator(va, vb) {
			return false
		}
	}
	return true
}
