package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
)

// requested data is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}
func (m Missing) Unwrap() error {
	return domerr.ErrMissing
}

// requested data is found too much.
type TooMuch struct {
	Table    string
	Identity string
	Expected int
}

var _ error = TooMuch{}

func (t TooMuch) Error() string {
	return fmt.Sprintf(
		"%s is found in %s more than %d times",
		t.Identity, t.Table, t.Expected,
	)
}

func (t TooMuch) Unwrap() error {
	return domerr.ErrTooMuch
}

// a write is rejected by a constraint of the table.
//
// Both of domerr.ErrConflict and the underlying *pgconn.PgError are reachable with
// errors.Is / errors.As.
type Conflict struct {
	Table      string
	Constraint string
	cause      *pgconn.PgError
}

var _ error = Conflict{}

func (c Conflict) Error() string {
	return fmt.Sprintf(
		"conflict in %s (constraint: %s): %s",
		c.Table, c.Constraint, c.cause.Message,
	)
}

func (c Conflict) Unwrap() []error {
	return []error{domerr.ErrConflict, c.cause}
}

// AsConflict converts err into Conflict when it is an integrity constraint violation.
//
// Otherwise, err is returned as it is.
func AsConflict(table string, err error) error {
	pgerr := new(pgconn.PgError)
	if !errors.As(err, &pgerr) {
		return err
	}
	switch pgerr.Code {
	case pgerrcode.UniqueViolation, pgerrcode.ForeignKeyViolation, pgerrcode.ExclusionViolation:
		return Conflict{Table: table, Constraint: pgerr.ConstraintName, cause: pgerr}
	}
	return err
}
