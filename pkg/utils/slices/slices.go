package slices

// Map returns mapper(v) for each v in sli, in order.
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	if sli == nil {
		return nil
	}
	ret := make([]R, len(sli))
	for i, v := range sli {
		ret[i] = mapper(v)
	}
	return ret
}

// MapUntilError is Map, stopping at the first error.
func MapUntilError[T any, R any](sli []T, mapper func(v T) (R, error)) ([]R, error) {
	ret := make([]R, 0, len(sli))
	for _, v := range sli {
		r, err := mapper(v)
		if err != nil {
			return nil, err
		}
		ret = append(ret, r)
	}
	return ret, nil
}

// KeysOf returns keys of m, in no particular order.
func KeysOf[K comparable, T any](m map[K]T) []K {
	ret := make([]K, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}

// Chunk splits sli into slices with at most size elements.
//
// It panics if size is not positive.
func Chunk[T any](sli []T, size int) [][]T {
	if size <= 0 {
		panic("slices.Chunk: size should be positive")
	}
	ret := make([][]T, 0, (len(sli)+size-1)/size)
	for size < len(sli) {
		sli, ret = sli[size:], append(ret, sli[:size:size])
	}
	if 0 < len(sli) {
		ret = append(ret, sli)
	}
	return ret
}
