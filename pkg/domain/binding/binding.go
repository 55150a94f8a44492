// Package binding resolves which concrete entity (and DTO) types a generic component works with.
//
// Type parameters are bound at compile time, but not every type argument is usable:
// interfaces, non-struct types, and structs without nullable identity are rejected here,
// once, when the component is constructed.
package binding

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/opst/knitdao/pkg/conn/db/postgres/scanner"
	domerr "github.com/opst/knitdao/pkg/domain/errors"
)

// TypeResolutionError is returned when a type argument cannot be bound.
type TypeResolutionError struct {
	// "entity" or "dto"
	Role string

	// the type argument. nil when it is an interface type without value.
	Type reflect.Type

	Reason string
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("%s: %s type %s: %s", domerr.ErrTypeResolution, e.Role, typeName(e.Type), e.Reason)
}

func (e *TypeResolutionError) Unwrap() error {
	return domerr.ErrTypeResolution
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Column is a stored field of entity.
type Column struct {
	Name  string
	Index []int
}

// Binding is the resolved type information of a generic component.
//
// It is immutable and safe for concurrent reads.
type Binding struct {
	entity  reflect.Type
	pointer bool
	dto     reflect.Type

	table    string
	identity Column
	columns  []Column
}

type options struct {
	table          string
	identityColumn string
}

type Option func(*options) *options

// WithTable overrides the table name. By default, snake_case of the entity type name.
func WithTable(name string) Option {
	return func(o *options) *options {
		o.table = name
		return o
	}
}

// WithIdentityColumn overrides the column name of identity.
func WithIdentityColumn(name string) Option {
	return func(o *options) *options {
		o.identityColumn = name
		return o
	}
}

// Of resolves the entity type E.
//
// E should be a struct or a pointer to struct, having an identity field which is
//
//   - tagged `sql:"id"`, or
//   - named "ID" or "Id" (when no fields are tagged so),
//
// and whose type is a pointer, since identity is nil until the entity is stored.
func Of[E any](opts ...Option) (Binding, error) {
	o := &options{}
	for _, opt := range opts {
		o = opt(o)
	}

	entity, pointer, err := structOf[E]("entity")
	if err != nil {
		return Binding{}, err
	}

	idField, ok := identityField(entity)
	if !ok {
		return Binding{}, &TypeResolutionError{
			Role: "entity", Type: entity,
			Reason: `no identity field (tagged sql:"id" or named ID)`,
		}
	}
	if idField.Type.Kind() != reflect.Pointer {
		return Binding{}, &TypeResolutionError{
			Role: "entity", Type: entity,
			Reason: fmt.Sprintf("identity field %s should be a pointer, but %s", idField.Name, idField.Type),
		}
	}

	b := Binding{
		entity:  entity,
		pointer: pointer,
		table:   o.table,
	}
	if b.table == "" {
		b.table = scanner.Snake(entity.Name())
	}

	b.identity = Column{Name: scanner.Column(idField), Index: idField.Index}
	if o.identityColumn != "" {
		b.identity.Name = o.identityColumn
	}

	for i := 0; i < entity.NumField(); i++ {
		sf := entity.Field(i)
		if !sf.IsExported() || sf.Tag.Get("sql") == "-" {
			continue
		}
		c := Column{Name: scanner.Column(sf), Index: sf.Index}
		if sf.Name == idField.Name {
			c = b.identity
		}
		b.columns = append(b.columns, c)
	}

	return b, nil
}

// Pair resolves the entity type E and the DTO type D.
//
// D should be a struct or a pointer to struct.
func Pair[E, D any](opts ...Option) (Binding, error) {
	b, err := Of[E](opts...)
	if err != nil {
		return Binding{}, err
	}
	dto, _, err := structOf[D]("dto")
	if err != nil {
		return Binding{}, err
	}
	b.dto = dto
	return b, nil
}

// Must returns b, or panics if err is not nil.
//
// Use it where a wiring failure should abort the process.
func Must(b Binding, err error) Binding {
	if err != nil {
		panic(err)
	}
	return b
}

func structOf[T any](role string) (reflect.Type, bool, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Interface {
		return nil, false, &TypeResolutionError{Role: role, Type: t, Reason: "not a concrete type"}
	}

	pointer := false
	st := t
	if st.Kind() == reflect.Pointer {
		pointer = true
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, false, &TypeResolutionError{Role: role, Type: t, Reason: "not a struct nor a pointer to struct"}
	}
	return st, pointer, nil
}

func identityField(st reflect.Type) (reflect.StructField, bool) {
	var named *reflect.StructField
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		if tag, _, _ := strings.Cut(sf.Tag.Get("sql"), ","); tag == "id" {
			return sf, true
		}
		if named == nil && (sf.Name == "ID" || sf.Name == "Id") && sf.Tag.Get("sql") != "-" {
			named = &sf
		}
	}
	if named != nil {
		return *named, true
	}
	return reflect.StructField{}, false
}

// Entity is the struct type of entity (not a pointer).
func (b Binding) Entity() reflect.Type {
	return b.entity
}

// Dto is the struct type of DTO. nil when the binding is made with Of.
func (b Binding) Dto() reflect.Type {
	return b.dto
}

// Pointer tells the entity type argument is a pointer to struct.
func (b Binding) Pointer() bool {
	return b.pointer
}

func (b Binding) Table() string {
	return b.table
}

func (b Binding) IdentityColumn() string {
	return b.identity.Name
}

// IdentityField is the identity field of the entity struct.
func (b Binding) IdentityField() reflect.StructField {
	return b.entity.FieldByIndex(b.identity.Index)
}

// IdentityType is the type of identity value, which is the element type of the identity field.
func (b Binding) IdentityType() reflect.Type {
	return b.entity.FieldByIndex(b.identity.Index).Type.Elem()
}

// Columns are names of stored fields in declaration order, identity included.
func (b Binding) Columns() []string {
	ret := make([]string, len(b.columns))
	for i, c := range b.columns {
		ret[i] = c.Name
	}
	return ret
}

// NewEntity returns a pointer to a new zero entity.
func (b Binding) NewEntity() any {
	return reflect.New(b.entity).Interface()
}

// NewDto returns a pointer to a new zero DTO. It returns nil when no DTO types are bound.
func (b Binding) NewDto() any {
	if b.dto == nil {
		return nil
	}
	return reflect.New(b.dto).Interface()
}

func (b Binding) elem(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Type() != b.entity {
		return reflect.Value{}, fmt.Errorf("binding: %T is not a non-nil *%s", v, b.entity)
	}
	return rv.Elem(), nil
}

// IdentityOf returns the identity value of the entity v (a pointer to entity).
//
// When the identity is nil or v is not an entity, it returns (nil, false).
func (b Binding) IdentityOf(v any) (any, bool) {
	rv, err := b.elem(v)
	if err != nil {
		return nil, false
	}
	id := rv.FieldByIndex(b.identity.Index)
	if id.IsNil() {
		return nil, false
	}
	return id.Elem().Interface(), true
}

// SetIdentity writes the identity k into the entity v (a pointer to entity).
//
// k should be a value of IdentityType, or a pointer to it. A nil pointer clears identity.
func (b Binding) SetIdentity(v any, k any) error {
	rv, err := b.elem(v)
	if err != nil {
		return err
	}
	field := rv.FieldByIndex(b.identity.Index)

	rk := reflect.ValueOf(k)
	switch {
	case k == nil:
		field.Set(reflect.Zero(field.Type()))
	case rk.Type() == field.Type():
		if rk.IsNil() {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(rk.Elem())
		field.Set(p)
	case rk.Type() == field.Type().Elem():
		p := reflect.New(rk.Type())
		p.Elem().Set(rk)
		field.Set(p)
	default:
		return fmt.Errorf("binding: identity of %s is %s, but %T is given", b.entity, field.Type(), k)
	}
	return nil
}

// Values returns values of the columns (in the order of names) of the entity v.
func (b Binding) Values(v any, names ...string) ([]any, error) {
	rv, err := b.elem(v)
	if err != nil {
		return nil, err
	}
	ret := make([]any, 0, len(names))
	for _, n := range names {
		c, ok := b.column(n)
		if !ok {
			return nil, fmt.Errorf("binding: no column %s in %s", n, b.entity)
		}
		ret = append(ret, rv.FieldByIndex(c.Index).Interface())
	}
	return ret, nil
}

func (b Binding) column(name string) (Column, bool) {
	for _, c := range b.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// RequirePointer returns TypeResolutionError unless the entity type argument is a pointer.
func (b Binding) RequirePointer() error {
	if !b.pointer {
		return &TypeResolutionError{Role: "entity", Type: b.entity, Reason: "should be a pointer to struct"}
	}
	return nil
}

// RequireIdentity returns TypeResolutionError unless identity values are K.
func RequireIdentity[K any](b Binding) error {
	k := reflect.TypeOf((*K)(nil)).Elem()
	if it := b.IdentityType(); it != k {
		return &TypeResolutionError{
			Role: "entity", Type: b.entity,
			Reason: fmt.Sprintf("identity is %s, but %s is required", it, k),
		}
	}
	return nil
}
