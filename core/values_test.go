package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValues_CopiesInput(t *testing.T) {
	src := map[string]any{
		"name":  "Ada",
		"items": []any{"a", "b"},
		"address": map[string]any{
			"city": "Berlin",
		},
	}

	v := NewValues(src)

	src["name"] = "Grace"
	src["items"].([]any)[0] = "z"
	src["address"].(map[string]any)["city"] = "Paris"
	delete(src, "items")

	assert.Equal(t, "Ada", v.GetString("name"))
	items, ok := v.Get("items")
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, items)
	addr, _ := v.Get("address")
	assert.Equal(t, "Berlin", addr.(map[string]any)["city"])
}

func TestValues_GetReturnsCopies(t *testing.T) {
	v := NewValues(map[string]any{"address": map[string]any{"city": "Berlin"}})

	addr, _ := v.Get("address")
	addr.(map[string]any)["city"] = "Paris"

	again, _ := v.Get("address")
	assert.Equal(t, "Berlin", again.(map[string]any)["city"])

	m := v.Map()
	m["address"] = "gone"
	assert.True(t, v.Has("address"))
	again, _ = v.Get("address")
	assert.IsType(t, map[string]any{}, again)
}

func TestValues_TypedContainersAreCopied(t *testing.T) {
	tags := []string{"x", "y"}
	counts := map[string]int{"a": 1}
	v := NewValues(map[string]any{"tags": tags, "counts": counts})

	tags[0] = "changed"
	counts["a"] = 99

	got, _ := v.Get("tags")
	assert.Equal(t, []string{"x", "y"}, got)
	gotCounts, _ := v.Get("counts")
	assert.Equal(t, map[string]int{"a": 1}, gotCounts)
}

func TestValues_MutationFails(t *testing.T) {
	v := NewValues(map[string]any{"a": 1})

	err := v.Set("a", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedModification))

	var modErr *ModificationError
	require.ErrorAs(t, err, &modErr)
	assert.Equal(t, "set", modErr.Op)
	assert.Equal(t, "a", modErr.Key)

	err = v.Delete("a")
	assert.ErrorIs(t, err, ErrUnsupportedModification)

	got, _ := v.Get("a")
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, v.Len())
}

func TestValues_MutationFailsThroughWriterInterface(t *testing.T) {
	var w FieldWriter = NewValues(nil)
	assert.ErrorIs(t, w.Set("k", "v"), ErrUnsupportedModification)
}

func TestValues_PersistentUpdates(t *testing.T) {
	base := NewValues(map[string]any{"a": 1, "b": 2})

	with := base.With("c", 3)
	without := base.Without("a")
	merged := base.Merge(NewValues(map[string]any{"b": 20, "d": 4}))
	picked := base.Pick("b", "missing")

	assert.Equal(t, []string{"a", "b"}, base.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, with.Keys())
	assert.Equal(t, []string{"b"}, without.Keys())
	assert.Equal(t, []string{"a", "b", "d"}, merged.Keys())
	b, _ := merged.Get("b")
	assert.Equal(t, 20, b)
	assert.Equal(t, []string{"b"}, picked.Keys())
}

func TestValues_ZeroValue(t *testing.T) {
	var v Values
	assert.True(t, v.IsEmpty())
	assert.Empty(t, v.Keys())
	_, ok := v.Get("x")
	assert.False(t, ok)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestValues_Accessors(t *testing.T) {
	v := NewValues(map[string]any{"qty": 3, "price": 2.5, "gift": true, "note": json.Number("7")})

	qty, ok := v.GetFloat("qty")
	assert.True(t, ok)
	assert.Equal(t, 3.0, qty)
	n, ok := v.GetFloat("note")
	assert.True(t, ok)
	assert.Equal(t, 7.0, n)
	_, ok = v.GetFloat("gift")
	assert.False(t, ok)
	assert.True(t, v.GetBool("gift"))
	assert.Equal(t, "", v.GetString("qty"))

	var seen []string
	v.Range(func(k string, _ any) bool {
		seen = append(seen, k)
		return len(seen) < 2
	})
	assert.Equal(t, []string{"gift", "note"}, seen)
}

func TestValues_Equal(t *testing.T) {
	a := NewValues(map[string]any{"x": []any{1, 2}})
	b := NewValues(map[string]any{"x": []any{1, 2}})
	c := NewValues(map[string]any{"x": []any{1}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

type shippingInfo struct {
	Lines  []string
	Extras map[string]string
	next   *shippingInfo
}

func TestDeepCopy_Structs(t *testing.T) {
	orig := &shippingInfo{Lines: []string{"l1"}, Extras: map[string]string{"k": "v"}}

	cp := DeepCopy(orig).(*shippingInfo)
	cp.Lines[0] = "changed"
	cp.Extras["k"] = "changed"

	assert.Equal(t, "l1", orig.Lines[0])
	assert.Equal(t, "v", orig.Extras["k"])
	assert.NotSame(t, orig, cp)
}
