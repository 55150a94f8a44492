package cmp

// check a == b, elementwise and in order.
func SliceEq[T comparable](a []T, b []T) bool {
	return SliceEqWith(a, b, EqEq[T])
}

// check pred(a[i], b[i]) for all i.
func SliceEqWith[T any, U any](a []T, b []U, pred BiPredicator[T, U]) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !pred(a[i], b[i]) {
			return false
		}
	}
	return true
}

// check a and b have same elements, ignoring order.
func SliceContentEq[T comparable](a, b []T) bool {
	return SliceContentEqWith(a, b, EqEq[T])
}

// check a and b have equivalent elements, ignoring order.
//
// Each element of b is paired with at most one element of a.
func SliceContentEqWith[S, T any](a []S, b []T, equiv BiPredicator[S, T]) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if used[j] || !equiv(x, y) {
				continue
			}
			used[j] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}
