// Package metric exposes Prometheus metrics for the engine and the runner.
//
// A Registry wraps a private prometheus.Registry with Go runtime and process
// collectors. Component metric sets are created against a Registry; a nil
// Registry disables metrics and yields nil sets whose methods are no-ops.
package metric
