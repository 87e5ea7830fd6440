package core

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// FieldReader is the read side shared by immutable Values and owned Fields.
type FieldReader interface {
	Get(key string) (any, bool)
	Has(key string) bool
	Len() int
	Keys() []string
}

// FieldWriter is implemented by containers that accept writes. Values
// implements it only to reject every write with ErrUnsupportedModification.
type FieldWriter interface {
	Set(key string, value any) error
	Delete(key string) error
}

// Values is an immutable mapping of field names to values. It is built once
// from a deep copy of its input and never changes afterwards, so it can be
// shared between goroutines and across ownership boundaries. Container values
// handed out by Get, Range and Map are copies as well.
//
// The zero value is an empty mapping.
type Values struct {
	m map[string]any
}

var (
	_ FieldReader = Values{}
	_ FieldWriter = Values{}
)

// NewValues returns immutable Values holding a deep copy of m.
func NewValues(m map[string]any) Values {
	if len(m) == 0 {
		return Values{}
	}
	return Values{m: copyMap(m)}
}

// Get returns the value stored under key. Maps and slices are returned as
// copies; changing them has no effect on v.
func (v Values) Get(key string) (any, bool) {
	val, ok := v.m[key]
	if !ok {
		return nil, false
	}
	return DeepCopy(val), true
}

// GetString returns the string stored under key, or "" when absent or not a string.
func (v Values) GetString(key string) string {
	s, _ := v.m[key].(string)
	return s
}

// GetBool returns the bool stored under key, or false when absent or not a bool.
func (v Values) GetBool(key string) bool {
	b, _ := v.m[key].(bool)
	return b
}

// GetFloat returns any numeric value stored under key as float64.
func (v Values) GetFloat(key string) (float64, bool) {
	return toFloat(v.m[key])
}

// Has reports whether key is present.
func (v Values) Has(key string) bool {
	_, ok := v.m[key]
	return ok
}

// Len returns the number of fields.
func (v Values) Len() int { return len(v.m) }

// IsEmpty reports whether v holds no fields.
func (v Values) IsEmpty() bool { return len(v.m) == 0 }

// Keys returns the field names in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for each field in key order until fn returns false.
func (v Values) Range(fn func(key string, value any) bool) {
	for _, k := range v.Keys() {
		if !fn(k, DeepCopy(v.m[k])) {
			return
		}
	}
}

// Map returns a deep copy of the underlying mapping that the caller owns.
func (v Values) Map() map[string]any { return copyMap(v.m) }

// With returns new Values with key set to value. v is unchanged.
func (v Values) With(key string, value any) Values {
	out := copyMap(v.m)
	out[key] = DeepCopy(value)
	return Values{m: out}
}

// Without returns new Values lacking the given keys.
func (v Values) Without(keys ...string) Values {
	out := copyMap(v.m)
	for _, k := range keys {
		delete(out, k)
	}
	return Values{m: out}
}

// Merge returns new Values containing v overlaid with other; other wins on conflicts.
func (v Values) Merge(other Values) Values {
	if other.IsEmpty() {
		return v
	}
	if v.IsEmpty() {
		return other
	}
	out := copyMap(v.m)
	for k, val := range other.m {
		out[k] = DeepCopy(val)
	}
	return Values{m: out}
}

// Pick returns new Values restricted to the given keys.
func (v Values) Pick(keys ...string) Values {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if val, ok := v.m[k]; ok {
			out[k] = DeepCopy(val)
		}
	}
	return Values{m: out}
}

// Equal reports whether both mappings hold deeply equal content.
func (v Values) Equal(other Values) bool {
	if v.Len() != other.Len() {
		return false
	}
	for k, a := range v.m {
		b, ok := other.m[k]
		if !ok || !reflect.DeepEqual(a, b) {
			return false
		}
	}
	return true
}

// Set always fails: Values cannot be modified after construction.
func (v Values) Set(key string, _ any) error {
	return &ModificationError{Op: "set", Key: key}
}

// Delete always fails: Values cannot be modified after construction.
func (v Values) Delete(key string) error {
	return &ModificationError{Op: "delete", Key: key}
}

// MarshalJSON encodes the mapping as a JSON object.
func (v Values) MarshalJSON() ([]byte, error) {
	if v.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v.m)
}

// String implements fmt.Stringer.
func (v Values) String() string { return fmt.Sprintf("%v", v.m) }

// ToFloat converts any Go numeric value or json.Number to float64.
func ToFloat(val any) (float64, bool) { return toFloat(val) }

func toFloat(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// UnmarshalJSON decodes a JSON object into v.
func (v *Values) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	v.m = m
	return nil
}
