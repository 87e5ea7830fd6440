package metric

import "github.com/prometheus/client_golang/prometheus"

// RunnerMetrics holds Prometheus metrics for the order lifecycle.
type RunnerMetrics struct {
	started   *prometheus.CounterVec // By flow
	commits   *prometheus.CounterVec // By flow and order status
	conflicts prometheus.Counter
}

// NewRunnerMetrics creates and registers runner metrics. A nil registry
// disables metrics.
func NewRunnerMetrics(reg *Registry) (*RunnerMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &RunnerMetrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runner",
			Name:      "orders_started_total",
			Help:      "Total number of orders started",
		}, []string{"flow"}),

		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runner",
			Name:      "commits_total",
			Help:      "Total number of committed step responses",
		}, []string{"flow", "order_status"}),

		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "runner",
			Name:      "version_conflicts_total",
			Help:      "Total number of optimistic concurrency conflicts",
		}),
	}

	if err := reg.Register("runner", "started", m.started); err != nil {
		return nil, err
	}
	if err := reg.Register("runner", "commits", m.commits); err != nil {
		return nil, err
	}
	if err := reg.Register("runner", "conflicts", m.conflicts); err != nil {
		return nil, err
	}

	return m, nil
}

// OrderStarted records a new order.
func (m *RunnerMetrics) OrderStarted(flow string) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(flow).Inc()
}

// Committed records a committed response.
func (m *RunnerMetrics) Committed(flow, orderStatus string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(flow, orderStatus).Inc()
}

// Conflict records a version conflict.
func (m *RunnerMetrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
