package core

import (
	"sort"
	"sync"
)

// Fields is a mutable mapping owned by exactly one writer, typically the
// Outcome of a single step execution. Stored values are deep-copied on the
// way in and out, so a Fields never aliases memory owned by someone else.
//
// The zero value is an empty mapping ready for use.
type Fields struct {
	mu sync.RWMutex
	m  map[string]any
}

var (
	_ FieldReader = (*Fields)(nil)
	_ FieldWriter = (*Fields)(nil)
)

// NewFields creates an empty Fields.
func NewFields() *Fields { return &Fields{m: map[string]any{}} }

// Set stores a deep copy of value under key. Values DeepCopy cannot fully
// copy are rejected with ErrInvalidArgument.
func (f *Fields) Set(key string, value any) error {
	if key == "" {
		return WrapInvalid(ErrInvalidArgument, "core", "Fields.Set", "empty key")
	}
	if err := CheckCopyable(value); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = map[string]any{}
	}
	f.m[key] = DeepCopy(value)
	return nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (f *Fields) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, key)
	return nil
}

// Get returns a copy of the value stored under key.
func (f *Fields) Get(key string) (any, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.m[key]
	if !ok {
		return nil, false
	}
	return DeepCopy(v), true
}

// Has reports whether key is present.
func (f *Fields) Has(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.m[key]
	return ok
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.m)
}

// Keys returns the field names in sorted order.
func (f *Fields) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.m))
	for k := range f.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Freeze returns immutable Values holding the current content.
// Later writes to f are not visible through the returned Values.
func (f *Fields) Freeze() Values {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return NewValues(f.m)
}
