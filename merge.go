package neosession

import (
	"fmt"
	"math"
	"reflect"
)

// convertValue converts a raw store property into a value assignable to a
// field of type typ. A nil raw value yields the zero value. Numeric values
// convert across widths only when no precision is lost.
func convertValue(raw any, typ reflect.Type) (reflect.Value, error) {
	out := reflect.New(typ).Elem()
	if raw == nil {
		return out, nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(typ) {
		out.Set(rv)
		return out, nil
	}

	fail := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("%w: cannot assign %T(%v) to %s", ErrPropertyConversion, raw, raw, typ)
	}

	switch {
	case isIntKind(typ.Kind()):
		var n int64
		switch {
		case isIntKind(rv.Kind()):
			n = rv.Int()
		case isUintKind(rv.Kind()):
			u := rv.Uint()
			if u > math.MaxInt64 {
				return fail()
			}
			n = int64(u)
		case isFloatKind(rv.Kind()):
			f := rv.Float()
			if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
				return fail()
			}
			n = int64(f)
		default:
			return fail()
		}
		if out.OverflowInt(n) {
			return fail()
		}
		out.SetInt(n)
		return out, nil

	case isUintKind(typ.Kind()):
		var u uint64
		switch {
		case isIntKind(rv.Kind()):
			n := rv.Int()
			if n < 0 {
				return fail()
			}
			u = uint64(n)
		case isUintKind(rv.Kind()):
			u = rv.Uint()
		case isFloatKind(rv.Kind()):
			f := rv.Float()
			if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 {
				return fail()
			}
			u = uint64(f)
		default:
			return fail()
		}
		if out.OverflowUint(u) {
			return fail()
		}
		out.SetUint(u)
		return out, nil

	case isFloatKind(typ.Kind()):
		var f float64
		switch {
		case isIntKind(rv.Kind()):
			f = float64(rv.Int())
		case isUintKind(rv.Kind()):
			f = float64(rv.Uint())
		case isFloatKind(rv.Kind()):
			f = rv.Float()
		default:
			return fail()
		}
		if out.OverflowFloat(f) {
			return fail()
		}
		out.SetFloat(f)
		return out, nil

	case typ.Kind() == reflect.Slice && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array):
		s := reflect.MakeSlice(typ, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elem, err := convertValue(rv.Index(i).Interface(), typ.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			s.Index(i).Set(elem)
		}
		return s, nil

	case rv.Kind() == typ.Kind() && rv.Type().ConvertibleTo(typ):
		// Named strings and bools, and driver temporal types defined over time.Time.
		out.Set(rv.Convert(typ))
		return out, nil
	}

	return fail()
}

func isIntKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUintKind(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// scalarValues converts every mapped property of props, in the order of
// m.Properties. Properties absent from props convert to the zero value.
func (m *entityMetadata) scalarValues(props map[string]any) ([]reflect.Value, error) {
	values := make([]reflect.Value, len(m.Properties))
	for i, p := range m.Properties {
		v, err := convertValue(props[p.Prop], p.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Type.Name(), p.Field, err)
		}
		values[i] = v
	}
	return values, nil
}

// applyScalars writes values produced by scalarValues into the entity.
func (m *entityMetadata) applyScalars(ptr reflect.Value, values []reflect.Value) {
	elem := ptr.Elem()
	for i, p := range m.Properties {
		elem.FieldByIndex(p.Index).Set(values[i])
	}
}

// propertiesOf reads the mapped properties of the entity into a property map.
func (m *entityMetadata) propertiesOf(ptr reflect.Value) map[string]any {
	elem := ptr.Elem()
	props := make(map[string]any, len(m.Properties))
	for _, p := range m.Properties {
		props[p.Prop] = elem.FieldByIndex(p.Index).Interface()
	}
	return props
}

// link points the relationship field of owner at target. Single-valued
// fields are overwritten, collections grow unless target is already present.
// Returns false when the field already referenced target.
func (r *relationshipMapping) link(owner, target reflect.Value) bool {
	field := owner.Elem().FieldByIndex(r.Index)
	if !r.Many {
		if field.Pointer() == target.Pointer() {
			return false
		}
		field.Set(target)
		return true
	}

	for i := 0; i < field.Len(); i++ {
		if field.Index(i).Pointer() == target.Pointer() {
			return false
		}
	}
	field.Set(reflect.Append(field, target))
	return true
}

// unlink removes every reference to target from the relationship field of owner.
func (r *relationshipMapping) unlink(owner, target reflect.Value) {
	field := owner.Elem().FieldByIndex(r.Index)
	if !r.Many {
		if field.Pointer() == target.Pointer() {
			field.Set(reflect.Zero(field.Type()))
		}
		return
	}

	kept := reflect.MakeSlice(field.Type(), 0, field.Len())
	for i := 0; i < field.Len(); i++ {
		if field.Index(i).Pointer() != target.Pointer() {
			kept = reflect.Append(kept, field.Index(i))
		}
	}
	if kept.Len() != field.Len() {
		field.Set(kept)
	}
}

// targets returns the non-nil entities referenced by the relationship field of owner.
func (r *relationshipMapping) targets(owner reflect.Value) []reflect.Value {
	field := owner.Elem().FieldByIndex(r.Index)
	if !r.Many {
		if field.IsNil() {
			return nil
		}
		return []reflect.Value{field}
	}

	out := make([]reflect.Value, 0, field.Len())
	for i := 0; i < field.Len(); i++ {
		if !field.Index(i).IsNil() {
			out = append(out, field.Index(i))
		}
	}
	return out
}
