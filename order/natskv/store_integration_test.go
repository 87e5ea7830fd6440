//go:build integration

package natskv

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/hupe1980/stepflow/core"
	"github.com/hupe1980/stepflow/order/ordertest"
)

func startJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.11.7-alpine",
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          []string{"--js", "--port", "4222", "--http_port", "8222"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222")
	require.NoError(t, err)

	nc, err := nats.Connect(fmt.Sprintf("nats://%s:%s", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	return js
}

type StoreIntegrationSuite struct {
	suite.Suite
	js      jetstream.JetStream
	buckets atomic.Int32
	ctx     context.Context
	cancel  context.CancelFunc
}

func TestStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(StoreIntegrationSuite))
}

func (s *StoreIntegrationSuite) SetupSuite() {
	s.js = startJetStream(s.T())
}

func (s *StoreIntegrationSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 30*time.Second)
}

func (s *StoreIntegrationSuite) TearDownTest() {
	s.cancel()
}

func (s *StoreIntegrationSuite) newStore(bucket string) *Store {
	store, err := New(s.ctx, s.js, func(o *Options) {
		o.Bucket = bucket
	})
	s.Require().NoError(err)
	return store
}

func (s *StoreIntegrationSuite) nextBucket() string {
	return fmt.Sprintf("orders_%d", s.buckets.Add(1))
}

// TestConformance runs the shared order store contract on a fresh bucket per case.
func (s *StoreIntegrationSuite) TestConformance() {
	ordertest.Run(s.T(), func(t *testing.T) core.OrderStore {
		store, err := New(context.Background(), s.js, func(o *Options) {
			o.Bucket = s.nextBucket()
		})
		require.NoError(t, err)
		return store
	})
}

func (s *StoreIntegrationSuite) TestReopenBucket() {
	bucket := s.nextBucket()

	first := s.newStore(bucket)
	s.Require().NoError(first.Create(s.ctx, core.NewOrder("o-1", "checkout", "address", nil)))

	second := s.newStore(bucket)

	got, err := second.Get(s.ctx, "o-1")
	s.Require().NoError(err)
	s.Equal("checkout", got.Flow)
	s.Equal(uint64(1), got.Version)
}

// TestConflictAcrossInstances checks that two stores sharing a bucket cannot
// both commit an update based on the same version.
func (s *StoreIntegrationSuite) TestConflictAcrossInstances() {
	bucket := s.nextBucket()

	a := s.newStore(bucket)
	b := s.newStore(bucket)

	s.Require().NoError(a.Create(s.ctx, core.NewOrder("o-1", "checkout", "address", nil)))

	fromA, err := a.Get(s.ctx, "o-1")
	s.Require().NoError(err)
	fromB, err := b.Get(s.ctx, "o-1")
	s.Require().NoError(err)

	fromA.CurrentStep = "payment"
	s.Require().NoError(a.Update(s.ctx, fromA))

	fromB.CurrentStep = "confirm"
	s.ErrorIs(b.Update(s.ctx, fromB), core.ErrVersionConflict)

	got, err := b.Get(s.ctx, "o-1")
	s.Require().NoError(err)
	s.Equal("payment", got.CurrentStep)
	s.Equal(uint64(2), got.Version)
}
