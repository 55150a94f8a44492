package scanner

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

type Queryer interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// type-safe scanner for pgx.Rows
//
// # example
//
//	type Invoice struct {
//		ID       *int64 `sql:"id"`
//		Customer string
//	}
//
//	func All(ctx context.Context, conn scanner.Queryer) ([]*Invoice, error) {
//		return scanner.New[*Invoice]().QueryAll(ctx, conn, `select "id", "customer" from "invoice"`)
//	}
//
// T can be a struct, a pointer to struct, or a single-column type (primitives, time.Time, []byte).
//
// # mapping rule
//
//	columns are mapped into
//
//		1. field with tag `sql:"column_name"`
//		2. or, field named as same as the column name
//		3. or, field which has a name in CamelCase version of column name.
//
//	In case 3, next characters of underscores can be lower or upper,
//	but they should be consistent in a field.
//
//	For example, column named "aa_bb__cc___dd" is mapped into field
//
//		- with tag `sql:"aa_bb__cc___dd"`  (the most priority)
//		- named "aa_bb__cc___dd"
//		- named "AaBb_Cc__Dd"
//		- named "AaBb_cc__dd"  (the worst priority)
//
//	Note that "AaBb_cc__Dd" or "AaBb_Cc__dd" are ignored.
//	Fields tagged `sql:"-"` are never mapped.
type Scanner[T any] interface {
	// scan all rows in pgx.Rows and convert to []T
	ScanAll(pgx.Rows) ([]T, error)

	// scan all rows in response of query.
	QueryAll(context.Context, Queryer, string, ...any) ([]T, error)
}

// New creates a Scanner for T.
//
// Scanners are immutable after creation and can be shared between goroutines.
func New[T any]() Scanner[T] {
	tval := reflect.TypeOf((*T)(nil)).Elem()

	if isSingleColumn(tval) {
		return &singleColumnScanner[T]{}
	}

	pointer := false
	st := tval
	if st.Kind() == reflect.Pointer {
		pointer = true
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return &brokenScanner[T]{err: fmt.Errorf("scanner: unsupported type %s", tval)}
	}

	return &structScanner[T]{fields: FieldsOf(st), pointer: pointer}
}

func isSingleColumn(t reflect.Type) bool {
	if t.AssignableTo(reflect.TypeOf(time.Time{})) || t.AssignableTo(reflect.TypeOf([]byte{})) {
		return true
	}
	switch t.Kind() {
	case
		reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	}
	return false
}

// Fields is the column lookup table of a struct type.
type Fields struct {
	byTag  map[string]reflect.StructField
	byName map[string]reflect.StructField
}

// FieldsOf builds the column lookup table of the struct type st.
func FieldsOf(st reflect.Type) Fields {
	f := Fields{
		byTag:  map[string]reflect.StructField{},
		byName: map[string]reflect.StructField{},
	}
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, ok := sf.Tag.Lookup("sql")
		if tag == "-" {
			continue
		}
		if ok && tag != "" {
			f.byTag[tag] = sf
		}
		f.byName[sf.Name] = sf
	}
	return f
}

// Lookup finds the field for the column.
func (f Fields) Lookup(column string) (reflect.StructField, bool) {
	if sf, ok := f.byTag[column]; ok {
		return sf, true
	}
	if sf, ok := f.byName[column]; ok {
		return sf, true
	}
	if sf, ok := f.byName[camel(column)]; ok {
		return sf, true
	}
	if sf, ok := f.byName[camelAndSnail(column)]; ok {
		return sf, true
	}
	return reflect.StructField{}, false
}

// Column returns the column name which is mapped to the field.
//
// The sql tag has priority. Otherwise, the snake_case version of the field name.
func Column(sf reflect.StructField) string {
	if tag, ok := sf.Tag.Lookup("sql"); ok && tag != "" {
		return tag
	}
	return Snake(sf.Name)
}

// Snake converts CamelCase name to snake_case. "IssuedAt" is "issued_at", "ID" is "id".
func Snake(name string) string {
	b := &strings.Builder{}
	runes := []rune(name)
	for i, r := range runes {
		upper := 'A' <= r && r <= 'Z'
		if upper && 0 < i {
			prevLower := 'a' <= runes[i-1] && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && 'a' <= runes[i+1] && runes[i+1] <= 'z'
			prevUpper := 'A' <= runes[i-1] && runes[i-1] <= 'Z'
			if prevLower || (prevUpper && nextLower) {
				b.WriteRune('_')
			}
		}
		if upper {
			r = r - 'A' + 'a'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func camel(s string) string {
	b := &strings.Builder{}
	for _, ss := range strings.Split(s, "_") {
		if len(ss) == 0 {
			b.WriteString("_")
			continue
		}
		b.WriteString(strings.ToUpper(ss[0:1]))
		b.WriteString(ss[1:])
	}

	return b.String()
}

func camelAndSnail(s string) string {
	b := &strings.Builder{}
	underscore := false
	for _, ss := range strings.Split(s, "_") {
		if len(ss) == 0 {
			b.WriteString("_")
			underscore = true
			continue
		}
		if underscore {
			b.WriteString(ss)
		} else {
			b.WriteString(strings.ToUpper(ss[0:1]))
			b.WriteString(ss[1:])
		}
		underscore = false
	}

	return b.String()
}

type structScanner[T any] struct {
	fields  Fields
	pointer bool
}

func (s *structScanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	sqlColumns := rows.FieldDescriptions()
	index := make([][]int, 0, len(sqlColumns))
	for _, fd := range sqlColumns {
		col := string(fd.Name)
		f, ok := s.fields.Lookup(col)
		if !ok {
			return nil, fmt.Errorf(
				`field for column "%s" (%s) is not found in type "%T"`,
				col, pgOID2String(fd.DataTypeOID), *new(T),
			)
		}
		index = append(index, f.Index)
	}

	ret := make([]T, 0, rows.CommandTag().RowsAffected())
	for rows.Next() {
		elem := new(T)
		target := reflect.ValueOf(elem).Elem()
		if s.pointer {
			target.Set(reflect.New(target.Type().Elem()))
			target = target.Elem()
		}

		dest := make([]any, len(index))
		for nth, idx := range index {
			dest[nth] = target.FieldByIndex(idx).Addr().Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ret = append(ret, *elem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *structScanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...any) ([]T, error) {
	return queryAll[T](ctx, s, conn, q, params...)
}

type singleColumnScanner[T any] struct{}

func (s *singleColumnScanner[T]) ScanAll(rows pgx.Rows) ([]T, error) {
	sqlColumns := rows.FieldDescriptions()
	if len(sqlColumns) != 1 {
		return nil, fmt.Errorf(`too much columns for %T: %d`, *new(T), len(sqlColumns))
	}

	ret := make([]T, 0, rows.CommandTag().RowsAffected())
	for rows.Next() {
		elem := new(T)
		if err := rows.Scan(elem); err != nil {
			return nil, fmt.Errorf(
				`column "%s" (type: %s in sql) can not be scanned into %T: %w`,
				sqlColumns[0].Name, pgOID2String(sqlColumns[0].DataTypeOID), *elem, err,
			)
		}
		ret = append(ret, *elem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *singleColumnScanner[T]) QueryAll(ctx context.Context, conn Queryer, q string, params ...any) ([]T, error) {
	return queryAll[T](ctx, s, conn, q, params...)
}

type brokenScanner[T any] struct {
	err error
}

func (b *brokenScanner[T]) ScanAll(pgx.Rows) ([]T, error) {
	return nil, b.err
}

func (b *brokenScanner[T]) QueryAll(context.Context, Queryer, string, ...any) ([]T, error) {
	return nil, b.err
}

func queryAll[T any](ctx context.Context, s Scanner[T], conn Queryer, q string, params ...any) ([]T, error) {
	rows, err := conn.Query(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.ScanAll(rows)
}

func pgOID2String(oid uint32) string {
	switch oid {
	case 0:
		return "unknown"
	case pgtype.BoolOID:
		return "bool"
	case pgtype.ByteaOID:
		return "bytea"
	case pgtype.Int8OID:
		return "int8"
	case pgtype.Int2OID:
		return "int2"
	case pgtype.Int4OID:
		return "int4"
	case pgtype.TextOID:
		return "text"
	case pgtype.JSONOID:
		return "json"
	case pgtype.JSONBOID:
		return "jsonb"
	case pgtype.Float4OID:
		return "float4"
	case pgtype.Float8OID:
		return "float8"
	case pgtype.VarcharOID:
		return "varchar"
	case pgtype.DateOID:
		return "date"
	case pgtype.TimestampOID:
		return "timestamp"
	case pgtype.TimestamptzOID:
		return "timestamptz"
	case pgtype.NumericOID:
		return "numeric"
	case pgtype.UUIDOID:
		return "uuid"
	case pgtype.Int8ArrayOID:
		return "int8[]"
	case pgtype.TextArrayOID:
		return "text[]"
	}

	return fmt.Sprintf("undefined oid(%d)", oid)
}
