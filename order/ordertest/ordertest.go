// Package ordertest provides a conformance suite for core.OrderStore
// implementations.
package ordertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/stepflow/core"
)

// Run executes the conformance suite. newStore must return an empty store
// for every call.
func Run(t *testing.T, newStore func(t *testing.T) core.OrderStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)

		o := core.NewOrder("o-1", "checkout", "address", map[string]any{"email": "a@b.c"})
		require.NoError(t, s.Create(ctx, o))
		assert.Equal(t, uint64(1), o.Version)

		got, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "checkout", got.Flow)
		assert.Equal(t, "address", got.CurrentStep)
		assert.Equal(t, core.OrderNew, got.Status)
		assert.Equal(t, uint64(1), got.Version)
		assert.Equal(t, "a@b.c", got.Data["email"])
	})

	t.Run("create duplicate", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Create(ctx, core.NewOrder("o-1", "checkout", "address", nil)))
		err := s.Create(ctx, core.NewOrder("o-1", "checkout", "address", nil))
		assert.ErrorIs(t, err, core.ErrOrderExists)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, core.ErrOrderNotFound)
	})

	t.Run("no aliasing", func(t *testing.T) {
		s := newStore(t)

		o := core.NewOrder("o-1", "checkout", "address", map[string]any{"tags": []any{"a"}})
		require.NoError(t, s.Create(ctx, o))

		o.Data["tags"].([]any)[0] = "mutated"
		o.Data["extra"] = true

		got, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, []any{"a"}, got.Data["tags"])
		assert.NotContains(t, got.Data, "extra")

		got.Data["tags"].([]any)[0] = "mutated again"

		again, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, []any{"a"}, again.Data["tags"])
	})

	t.Run("update bumps version", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Create(ctx, core.NewOrder("o-1", "checkout", "address", nil)))

		o, err := s.Get(ctx, "o-1")
		require.NoError(t, err)

		o.CurrentStep = "payment"
		o.Status = core.OrderInProgress
		o.Data["street"] = "Main St 1"
		o.Updated = time.Now().UTC()
		require.NoError(t, s.Update(ctx, o))
		assert.Equal(t, uint64(2), o.Version)

		got, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), got.Version)
		assert.Equal(t, "payment", got.CurrentStep)
		assert.Equal(t, core.OrderInProgress, got.Status)
		assert.Equal(t, "Main St 1", got.Data["street"])
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Create(ctx, core.NewOrder("o-1", "checkout", "address", nil)))

		first, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		second, err := s.Get(ctx, "o-1")
		require.NoError(t, err)

		first.CurrentStep = "payment"
		require.NoError(t, s.Update(ctx, first))

		second.CurrentStep = "confirm"
		err = s.Update(ctx, second)
		assert.ErrorIs(t, err, core.ErrVersionConflict)
		assert.True(t, core.IsTransient(err))

		got, err := s.Get(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, "payment", got.CurrentStep)
	})

	t.Run("concurrent updates", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Create(ctx, core.NewOrder("o-1", "checkout", "address", nil)))

		const writers = 8

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)

		base, err := s.Get(ctx, "o-1")
		require.NoError(t, err)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(o *core.Order) {
				defer wg.Done()
				if err := s.Update(ctx, o); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}(base.Clone())
		}

		wg.Wait()
		assert.Equal(t, 1, successes, "exactly one writer may win a version")
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)

		err := s.Update(ctx, core.NewOrder("missing", "checkout", "address", nil))
		assert.ErrorIs(t, err, core.ErrOrderNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Create(ctx, core.NewOrder("o-1", "checkout", "address", nil)))
		require.NoError(t, s.Delete(ctx, "o-1"))

		_, err := s.Get(ctx, "o-1")
		assert.ErrorIs(t, err, core.ErrOrderNotFound)

		assert.ErrorIs(t, s.Delete(ctx, "o-1"), core.ErrOrderNotFound)
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)

		orders, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, orders)

		older := core.NewOrder("o-b", "checkout", "address", nil)
		older.Created = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		newer := core.NewOrder("o-a", "checkout", "address", nil)
		newer.Created = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.Create(ctx, newer))
		require.NoError(t, s.Create(ctx, older))

		orders, err = s.List(ctx)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, "o-b", orders[0].ID)
		assert.Equal(t, "o-a", orders[1].ID)
	})
}
