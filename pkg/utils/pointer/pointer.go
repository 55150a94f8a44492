package pointer

// Ref returns a pointer to a copy of t.
func Ref[T any](t T) *T {
	return &t
}

// SafeDeref returns *val, or zero value of T when val is nil.
func SafeDeref[T any](val *T) T {
	if val == nil {
		return *new(T)
	}
	return *val
}
