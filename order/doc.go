// Package order provides OrderStore implementations.
//
// InMemoryStore keeps orders in a process local map and is suited for tests
// and single instance deployments. The natskv subpackage persists orders in
// a NATS JetStream key-value bucket.
//
// All stores follow the core.OrderStore contract: records are cloned on the
// way in and out, and Update is an optimistic compare-and-set on
// Order.Version.
package order
