package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/stepflow/core"
)

var _ core.OrderStore = (*InMemoryStore)(nil)

// InMemoryStore is a volatile OrderStore implementation storing orders in a
// process local map. It is safe for concurrent access. Orders are cloned on
// every read and write so callers never share memory with the store.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[string]*core.Order
	now    func() time.Time
}

// NewInMemoryStore constructs an empty in-memory order store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		orders: make(map[string]*core.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a clone of order. The stored version starts at 1 and is
// written back to order.
func (s *InMemoryStore) Create(_ context.Context, order *core.Order) error {
	if order == nil || order.ID == "" {
		return core.WrapInvalid(core.ErrInvalidArgument, "order", "Create", "order id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("%w: %s", core.ErrOrderExists, order.ID)
	}

	order.Version = 1
	s.orders[order.ID] = order.Clone()

	return nil
}

// Get returns a clone of the stored order.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
	}

	return o.Clone(), nil
}

// Update replaces the stored order when its version matches order.Version.
// On success order.Version is incremented to the new stored version.
func (s *InMemoryStore) Update(_ context.Context, order *core.Order) error {
	if order == nil {
		return core.WrapInvalid(core.ErrInvalidArgument, "order", "Update", "order is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[order.ID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrOrderNotFound, order.ID)
	}

	if stored.Version != order.Version {
		return fmt.Errorf("%w: %s has version %d, update based on %d",
			core.ErrVersionConflict, order.ID, stored.Version, order.Version)
	}

	order.Version++
	if order.Updated.IsZero() {
		order.Updated = s.now()
	}
	s.orders[order.ID] = order.Clone()

	return nil
}

// Delete removes the order.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
	}

	delete(s.orders, id)

	return nil
}

// List returns clones of all orders sorted by creation time, then id.
func (s *InMemoryStore) List(_ context.Context) ([]*core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o.Clone())
	}

	SortOrders(out)

	return out, nil
}

// SortOrders sorts orders by creation time, then id.
func SortOrders(orders []*core.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Created.Equal(orders[j].Created) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].Created.Before(orders[j].Created)
	})
}
