// Package try turns (T, error) pairs into values, failing tests on error.
//
//	store := try.To(invoice.NewStore(p)).OrFatal(t)
package try

// something have method `Fatal`, like *testing.T.
type Fataler interface {
	Fatal(...any)
}

// Either is a pair of (T, error).
//
// When error is nil, the Either is "ok" and T is valid. Otherwise T is not valid.
type Either[T any] struct {
	value T
	err   error
}

func To[T any](value T, err error) Either[T] {
	if err != nil {
		return Either[T]{err: err}
	}
	return Either[T]{value: value}
}

// get the value and error pair.
func (e Either[T]) Get() (T, error) {
	return e.value, e.err
}

// return the value if ok. Otherwise, ftl.Fatal(err) is called.
//
// If ftl has "Helper()" method (like *testing.T), also that is called before `Fatal`.
func (e Either[T]) OrFatal(ftl Fataler) T {
	if e.err == nil {
		return e.value
	}
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(e.err)
	return *new(T)
}

func (e Either[T]) OrDefault(d T) T {
	if e.err != nil {
		return d
	}
	return e.value
}
