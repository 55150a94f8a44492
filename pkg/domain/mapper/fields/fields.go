// Package fields copies fields between structs of different types.
//
// It is the field-mapping collaborator of mappers: it fills a new DTO from an entity,
// and overlays DTO fields onto an entity in place.
//
// # matching rule
//
// For each exported field of the destination, the source field is looked up
//
//  1. by tag `map:"Name"` on either side (compared with the tag or the field name of the other side),
//  2. or, by the same JSON name (tag `json:"name"`),
//  3. or, by the same field name,
//  4. or, by the field name ignoring case.
//
// Fields tagged `map:"-"` are never copied. Destination fields without source are left as they are.
//
// # conversion rule
//
//   - assignable values are assigned. Slices and maps of numbers, strings or bools are deep-copied,
//     other slices and maps are shared,
//   - pointers are cloned: *S -> *D allocates a new D, and nil *S makes *D nil,
//   - *S -> D dereferences. nil leaves D as it is,
//   - S -> *D allocates a new D,
//   - numbers convert into numbers, strings into strings, bools into bools,
//   - slices convert element-wise,
//   - structs of different types are copied recursively by this rule.
//
// Number conversions never lose the integer part: floats do not convert into integers,
// and values out of the destination range (negatives into unsigned, too) are errors.
//
// Other pairs of matched fields are errors.
package fields

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
	xe "github.com/opst/knitdao/pkg/errors"
)

// ErrIncompatible is wrapped by errors of Copy when matched fields have inconvertible types.
var ErrIncompatible = errors.New("incompatible types")

type Copier interface {
	// Copy overlays fields of src (a struct or a pointer to struct) onto dst (a pointer to struct).
	//
	// When a value cannot be converted, fields before it are already overwritten.
	Copy(src, dst any) error
}

type pair struct {
	src reflect.Type
	dst reflect.Type
}

type step struct {
	src  []int
	dst  []int
	name string
	conv converter
}

type plan []step

type converter func(src, dst reflect.Value) error

type reflectCopier struct {
	plans sync.Map // pair -> plan
}

// Reflect returns a Copier working with reflection.
//
// Plans of copying are built once per pair of types and cached. The Copier is safe for concurrent use.
func Reflect() Copier {
	return &reflectCopier{}
}

func (c *reflectCopier) Copy(src, dst any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() || dv.Elem().Kind() != reflect.Struct {
		return xe.Errorf("fields: destination %T is not a non-nil pointer to struct", dst)
	}
	sv := reflect.ValueOf(src)
	if sv.Kind() == reflect.Pointer {
		if sv.IsNil() {
			return xe.Errorf("fields: source %T is nil", src)
		}
		sv = sv.Elem()
	}
	if sv.Kind() != reflect.Struct {
		return xe.Errorf("fields: source %T is not a struct nor a pointer to struct", src)
	}
	return c.copyStruct(sv, dv.Elem())
}

func (c *reflectCopier) copyStruct(src, dst reflect.Value) error {
	p, err := c.plan(src.Type(), dst.Type())
	if err != nil {
		return err
	}
	for _, s := range p {
		if err := s.conv(src.FieldByIndex(s.src), dst.FieldByIndex(s.dst)); err != nil {
			return xe.Errorf("fields: %s: %w", s.name, err)
		}
	}
	return nil
}

func (c *reflectCopier) plan(st, dt reflect.Type) (plan, error) {
	key := pair{src: st, dst: dt}
	if p, ok := c.plans.Load(key); ok {
		return p.(plan), nil
	}

	srcFields := fieldsOf(st)
	p := plan{}
	for _, df := range fieldsOf(dt) {
		sf, ok := match(df, srcFields)
		if !ok {
			continue
		}
		conv, err := c.converter(sf.Type, df.Type)
		if err != nil {
			return nil, xe.Errorf(
				"fields: %s.%s (%s) cannot be copied into %s.%s (%s): %w",
				st, sf.Name, sf.Type, dt, df.Name, df.Type, err,
			)
		}
		p = append(p, step{
			src: sf.Index, dst: df.Index,
			name: st.String() + "." + sf.Name + " -> " + dt.String() + "." + df.Name,
			conv: conv,
		})
	}

	actual, _ := c.plans.LoadOrStore(key, p)
	return actual.(plan), nil
}

// fieldsOf returns exported fields reachable without dereference, including promoted ones.
func fieldsOf(st reflect.Type) []reflect.StructField {
	ret := []reflect.StructField{}
	for _, sf := range reflect.VisibleFields(st) {
		if !sf.IsExported() || sf.Anonymous || sf.Tag.Get("map") == "-" {
			continue
		}
		if throughPointer(st, sf.Index) {
			continue
		}
		ret = append(ret, sf)
	}
	return ret
}

func throughPointer(st reflect.Type, index []int) bool {
	t := st
	for _, i := range index[:len(index)-1] {
		t = t.Field(i).Type
		if t.Kind() != reflect.Struct {
			return true
		}
	}
	return false
}

func mapName(sf reflect.StructField) (string, bool) {
	if tag := sf.Tag.Get("map"); tag != "" {
		return tag, true
	}
	return sf.Name, false
}

func jsonName(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func match(df reflect.StructField, candidates []reflect.StructField) (reflect.StructField, bool) {
	dname, dtagged := mapName(df)
	for _, sf := range candidates {
		sname, stagged := mapName(sf)
		if (dtagged || stagged) && dname == sname {
			return sf, true
		}
	}
	if dj := jsonName(df); dj != "" {
		for _, sf := range candidates {
			if jsonName(sf) == dj {
				return sf, true
			}
		}
	}
	for _, sf := range candidates {
		if sf.Name == df.Name {
			return sf, true
		}
	}
	for _, sf := range candidates {
		if strings.EqualFold(sf.Name, df.Name) {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}

type kindClass int

const (
	otherClass kindClass = iota
	numberClass
	stringClass
	boolClass
)

func classOf(k reflect.Kind) kindClass {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return numberClass
	case reflect.String:
		return stringClass
	case reflect.Bool:
		return boolClass
	default:
		return otherClass
	}
}

func (c *reflectCopier) converter(st, dt reflect.Type) (converter, error) {
	switch {
	case st.Kind() == reflect.Pointer && dt.Kind() == reflect.Pointer:
		elem, err := c.converter(st.Elem(), dt.Elem())
		if err != nil {
			return nil, err
		}
		return func(src, dst reflect.Value) error {
			if src.IsNil() {
				dst.Set(reflect.Zero(dt))
				return nil
			}
			p := reflect.New(dt.Elem())
			if err := elem(src.Elem(), p.Elem()); err != nil {
				return err
			}
			dst.Set(p)
			return nil
		}, nil

	case st.Kind() == reflect.Pointer:
		elem, err := c.converter(st.Elem(), dt)
		if err != nil {
			return nil, err
		}
		return func(src, dst reflect.Value) error {
			if src.IsNil() {
				return nil
			}
			return elem(src.Elem(), dst)
		}, nil

	case dt.Kind() == reflect.Pointer:
		elem, err := c.converter(st, dt.Elem())
		if err != nil {
			return nil, err
		}
		return func(src, dst reflect.Value) error {
			p := reflect.New(dt.Elem())
			if err := elem(src, p.Elem()); err != nil {
				return err
			}
			dst.Set(p)
			return nil
		}, nil

	case st.AssignableTo(dt) && plainContainer(st):
		return func(src, dst reflect.Value) error {
			if src.IsNil() {
				dst.Set(reflect.Zero(dt))
				return nil
			}
			// copier appends into a non-empty destination, so it always fills a fresh one.
			fresh := reflect.New(dt)
			if err := copier.CopyWithOption(
				fresh.Interface(), src.Interface(), copier.Option{DeepCopy: true},
			); err != nil {
				return xe.Wrap(err)
			}
			dst.Set(fresh.Elem())
			return nil
		}, nil

	case st.AssignableTo(dt):
		return func(src, dst reflect.Value) error {
			dst.Set(src)
			return nil
		}, nil

	case st.Kind() == reflect.Slice && dt.Kind() == reflect.Slice:
		elem, err := c.converter(st.Elem(), dt.Elem())
		if err != nil {
			return nil, err
		}
		return func(src, dst reflect.Value) error {
			if src.IsNil() {
				dst.Set(reflect.Zero(dt))
				return nil
			}
			s := reflect.MakeSlice(dt, src.Len(), src.Len())
			for i := 0; i < src.Len(); i++ {
				if err := elem(src.Index(i), s.Index(i)); err != nil {
					return err
				}
			}
			dst.Set(s)
			return nil
		}, nil

	case classOf(st.Kind()) == numberClass && classOf(dt.Kind()) == numberClass:
		return numberConverter(st, dt)

	case classOf(st.Kind()) != otherClass && classOf(st.Kind()) == classOf(dt.Kind()):
		return func(src, dst reflect.Value) error {
			dst.Set(src.Convert(dt))
			return nil
		}, nil

	case st.Kind() == reflect.Struct && dt.Kind() == reflect.Struct:
		// nested plans are resolved on use, so recursive types do not recurse here.
		return c.copyStruct, nil
	}

	return nil, ErrIncompatible
}

// plainContainer tells t is a slice or a map which holds only numbers, strings, bools
// or such containers.
func plainContainer(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice:
		return plainContainer(t.Elem()) || classOf(t.Elem().Kind()) != otherClass
	case reflect.Map:
		if classOf(t.Key().Kind()) == otherClass {
			return false
		}
		return plainContainer(t.Elem()) || classOf(t.Elem().Kind()) != otherClass
	default:
		return false
	}
}

type numberKind int

const (
	signed numberKind = iota
	unsigned
	float
)

func numberKindOf(k reflect.Kind) numberKind {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return unsigned
	case reflect.Float32, reflect.Float64:
		return float
	default:
		return signed
	}
}

func numberConverter(st, dt reflect.Type) (converter, error) {
	from, to := numberKindOf(st.Kind()), numberKindOf(dt.Kind())
	if from == float && to != float {
		return nil, xe.Errorf("%s into %s truncates: %w", st, dt, ErrIncompatible)
	}

	return func(src, dst reflect.Value) error {
		overflow := false
		switch from {
		case signed:
			v := src.Int()
			switch to {
			case signed:
				overflow = dst.OverflowInt(v)
			case unsigned:
				overflow = v < 0 || dst.OverflowUint(uint64(v))
			}
		case unsigned:
			v := src.Uint()
			switch to {
			case signed:
				overflow = v > math.MaxInt64 || dst.OverflowInt(int64(v))
			case unsigned:
				overflow = dst.OverflowUint(v)
			}
		case float:
			v := src.Float()
			overflow = !math.IsInf(v, 0) && !math.IsNaN(v) && dst.OverflowFloat(v)
		}
		if overflow {
			return xe.Errorf("%v overflows %s: %w", src.Interface(), dt, ErrIncompatible)
		}
		dst.Set(src.Convert(dt))
		return nil
	}, nil
}
