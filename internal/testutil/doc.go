// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing orders, snapshots and node run contexts.
// They are not intended for production usage.
package testutil
