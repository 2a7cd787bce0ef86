package stillsuit

import (
	"fmt"
	"reflect"
	"sync"
	"time"
)

// fieldSchema maps the `db` struct tags of an entity type to its field
// indices. Backends use it to resolve filter field names and, for SQL,
// to derive column lists. Unknown names resolve to ErrUnknownField,
// which is the contract's generic repository error.
type fieldSchema struct {
	columns []string
	index   map[string]int
}

var schemaCache sync.Map // reflect.Type -> *fieldSchema

func schemaOf[T any]() (*fieldSchema, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if cached, ok := schemaCache.Load(typ); ok {
		return cached.(*fieldSchema), nil
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity type %s is not a struct", typ)
	}

	s := &fieldSchema{index: make(map[string]int)}
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		s.columns = append(s.columns, tag)
		s.index[tag] = i
	}
	if len(s.columns) == 0 {
		return nil, fmt.Errorf("entity type %s has no db-tagged fields", typ)
	}

	schemaCache.Store(typ, s)
	return s, nil
}

func (s *fieldSchema) has(field string) bool {
	_, ok := s.index[field]
	return ok
}

// value returns the value of the named field on item.
func (s *fieldSchema) value(item any, field string) (any, error) {
	i, ok := s.index[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	return v.Field(i).Interface(), nil
}

// setValue assigns the named field on item, converting value to the
// field's type when assignable.
func (s *fieldSchema) setValue(item any, field string, value any) error {
	i, ok := s.index[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	fv := reflect.ValueOf(item).Elem().Field(i)
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if !rv.Type().AssignableTo(fv.Type()) {
		if !rv.Type().ConvertibleTo(fv.Type()) {
			return fmt.Errorf("cannot assign %T to field %q", value, field)
		}
		rv = rv.Convert(fv.Type())
	}
	fv.Set(rv)
	return nil
}

// matches evaluates predicate filters against item with AND semantics.
// LimitOffset filters must be split off beforehand.
func (s *fieldSchema) matches(item any, predicates []Filter) (bool, error) {
	for _, f := range predicates {
		ok, err := s.matchOne(item, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *fieldSchema) matchOne(item any, f Filter) (bool, error) {
	switch f := f.(type) {
	case Where:
		got, err := s.value(item, f.Field)
		if err != nil {
			return false, err
		}
		return equalValues(got, f.Value), nil
	case InSet:
		got, err := s.value(item, f.Field)
		if err != nil {
			return false, err
		}
		for _, want := range f.Values {
			if equalValues(got, want) {
				return true, nil
			}
		}
		return false, nil
	case BeforeAfter:
		got, err := s.value(item, f.Field)
		if err != nil {
			return false, err
		}
		ts, ok := got.(time.Time)
		if !ok {
			return false, fmt.Errorf("field %q is not a time value", f.Field)
		}
		if f.Before != nil && !ts.Before(*f.Before) {
			return false, nil
		}
		if f.After != nil && !ts.After(*f.After) {
			return false, nil
		}
		return true, nil
	case LimitOffset:
		// Pagination is not a predicate.
		return true, nil
	default:
		return false, fmt.Errorf("%w: filter %T", ErrUnsupportedOperation, f)
	}
}

// equalValues compares a field value with a filter value, tolerating
// differing numeric types the way untyped filter literals produce them.
func equalValues(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat64(a)
	bf, bok := toFloat64(b)
	return aok && bok && af == bf
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// entityName derives a stable name for T used in errors, logs and
// metric labels.
func entityName[T any]() string {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ.Name()
}
