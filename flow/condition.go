package flow

import (
	"reflect"

	"github.com/hupe1980/stepflow/core"
)

// Condition is a predicate over the routing data: the merged snapshot data
// overlaid with the backend output of the current execution.
type Condition func(data core.Values) bool

// FieldEquals holds when field is present and deeply equal to value.
// Numeric values compare by magnitude, so 1 equals 1.0.
func FieldEquals(field string, value any) Condition {
	return func(data core.Values) bool {
		got, ok := data.Get(field)
		if !ok {
			return false
		}
		return valuesEqual(got, value)
	}
}

// FieldIn holds when field equals one of values.
func FieldIn(field string, values ...any) Condition {
	return func(data core.Values) bool {
		got, ok := data.Get(field)
		if !ok {
			return false
		}
		for _, v := range values {
			if valuesEqual(got, v) {
				return true
			}
		}
		return false
	}
}

// FieldExists holds when field is present, whatever its value.
func FieldExists(field string) Condition {
	return func(data core.Values) bool { return data.Has(field) }
}

// FieldTruthy holds when field is present and not a zero value: false, 0,
// "", nil or an empty collection.
func FieldTruthy(field string) Condition {
	return func(data core.Values) bool {
		got, ok := data.Get(field)
		return ok && truthy(got)
	}
}

// Not negates c.
func Not(c Condition) Condition {
	return func(data core.Values) bool { return !c(data) }
}

// All holds when every condition holds. An empty All always holds.
func All(conds ...Condition) Condition {
	return func(data core.Values) bool {
		for _, c := range conds {
			if !c(data) {
				return false
			}
		}
		return true
	}
}

// Any holds when at least one condition holds.
func Any(conds ...Condition) Condition {
	return func(data core.Values) bool {
		for _, c := range conds {
			if c(data) {
				return true
			}
		}
		return false
	}
}

// Always is a condition that always holds.
func Always() Condition {
	return func(core.Values) bool { return true }
}

func valuesEqual(a, b any) bool {
	fa, aNum := core.ToFloat(a)
	fb, bNum := core.ToFloat(b)
	if aNum && bNum {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}

	if n, ok := core.ToFloat(v); ok {
		return n != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}

	return true
}
