// Provide error wrapper with created location.
//
// Usage:
//
// ```
// wrapped := xe.Wrap(err)
// ```
//
// returns new error object wraps `err`, or nil when `err` is nil.
//
// `wrapped` knows filename, line, and the name of function where itself is created.
//
// When you read message of this, replace
//
//	s/<-/\n/
//
// and it gives you "stacks" of where you marks.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

type ErrWithCaller struct {
	file     string
	line     int
	funcname string
	note     string
	err      error
}

func (e *ErrWithCaller) File() string {
	return e.file
}

func (e *ErrWithCaller) Line() int {
	return e.line
}

func (e *ErrWithCaller) Func() string {
	return e.funcname
}

func (e *ErrWithCaller) Note() string {
	return e.note
}

func (e *ErrWithCaller) Error() string {
	if e.note == "" {
		return fmt.Sprintf(`@ %s "%s" l%d <- %s`, e.funcname, e.file, e.line, e.err.Error())
	}
	return fmt.Sprintf(`@ %s "%s" l%d (%s) <- %s`, e.funcname, e.file, e.line, e.note, e.err.Error())
}

func (e *ErrWithCaller) Unwrap() error {
	return e.err
}

func New(text string) error {
	return wrap("", errors.New(text), 1)
}

// Errorf is fmt.Errorf remembering where it is called. `%w` verbs are honored.
func Errorf(format string, args ...any) error {
	return wrap("", fmt.Errorf(format, args...), 1)
}

// Wrap err with the caller location.
//
// Wrap(nil) is nil, so `return xe.Wrap(err)` is safe on success path.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap("", err, 1)
}

func WrapAsOuter(err error, depth int) error {
	if err == nil {
		return nil
	}
	return wrap("", err, depth+1)
}

func WrapWithNote(note string, err error) error {
	if err == nil {
		return nil
	}
	return wrap(note, err, 1)
}

func wrap(note string, err error, depth int) error {
	pc, file, line, ok := runtime.Caller(depth + 1)
	funcname := "(unknown func)"
	if !ok {
		file = "?"
		line = -1
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		funcname = fn.Name()
	}

	return &ErrWithCaller{
		funcname: funcname,
		file:     file,
		line:     line,
		note:     note,
		err:      err,
	}
}
