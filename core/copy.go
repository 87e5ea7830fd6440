package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"
)

var (
	timeType   = reflect.TypeOf(time.Time{})
	valuesType = reflect.TypeOf(Values{})
)

// DeepCopy returns a copy of v that shares no mutable container (map, slice,
// array, pointer) with v. Immutable values (Values, scalars, time.Time) are
// returned unchanged. Input graphs must be acyclic.
//
// Unexported struct fields cannot be copied through reflection. Values that
// hold containers in unexported fields are rejected by CheckCopyable; callers
// crossing an ownership boundary check first.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number, time.Time, time.Duration:
		return t
	case Values:
		return t
	case map[string]any:
		return copyMap(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	}

	return copyValue(reflect.ValueOf(v)).Interface()
}

// copyMap deep copies a generic document map. A nil input yields an empty map
// so callers always own a writable container.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}

func copyValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(copyValue(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(copyValue(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(copyValue(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(copyValue(v.Field(i)))
			}
		}
		return out
	default:
		return v
	}
}

// CheckCopyable reports whether DeepCopy can produce a fully independent copy
// of v. It fails with ErrInvalidArgument for channels, funcs and structs whose
// unexported fields may reference mutable memory.
func CheckCopyable(v any) error {
	return checkCopyable(reflect.ValueOf(v), "")
}

func checkCopyable(v reflect.Value, path string) error {
	if !v.IsValid() {
		return nil
	}

	if t := v.Type(); t == timeType || t == valuesType {
		return nil
	}

	switch v.Kind() {
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkCopyable(iter.Value(), joinPath(path, fmt.Sprint(iter.Key()))); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkCopyable(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			return checkCopyable(v.Elem(), path)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			sf := t.Field(i)
			if sf.IsExported() {
				if err := checkCopyable(v.Field(i), joinPath(path, sf.Name)); err != nil {
					return err
				}
				continue
			}
			if holdsReferences(sf.Type) {
				return notCopyable(path, fmt.Sprintf("%s has unexported field %s of type %s", t, sf.Name, sf.Type))
			}
		}
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return notCopyable(path, fmt.Sprintf("%s values cannot be copied", v.Kind()))
	}

	return nil
}

// holdsReferences reports whether values of t may point at shared memory.
func holdsReferences(t reflect.Type) bool {
	if t == timeType || t == valuesType {
		return false
	}

	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return holdsReferences(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if holdsReferences(t.Field(i).Type) {
				return true
			}
		}
	}

	return false
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func notCopyable(path, msg string) error {
	if path != "" {
		msg = path + ": " + msg
	}
	return WrapInvalid(ErrInvalidArgument, "core", "CheckCopyable", msg)
}
