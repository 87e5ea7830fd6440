package order

import (
	"testing"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/order/ordertest"
)

func TestInMemoryStore(t *testing.T) {
	ordertest.Run(t, func(*testing.T) core.OrderStore {
		return NewInMemoryStore()
	})
}
