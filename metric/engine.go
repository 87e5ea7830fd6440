package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics holds Prometheus metrics for step executions.
type EngineMetrics struct {
	executions *prometheus.CounterVec   // By flow, step and response status
	duration   *prometheus.HistogramVec // By flow and step
	nodeErrors *prometheus.CounterVec   // By flow, step and node
	inFlight   prometheus.Gauge
}

// NewEngineMetrics creates and registers engine metrics. A nil registry
// disables metrics.
func NewEngineMetrics(reg *Registry) (*EngineMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &EngineMetrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "executions_total",
			Help:      "Total number of step executions",
		}, []string{"flow", "step", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"flow", "step"}),

		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "node_errors_total",
			Help:      "Total number of node execution errors",
		}, []string{"flow", "step", "node"}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "executions_in_flight",
			Help:      "Current number of running step executions",
		}),
	}

	if err := reg.Register("engine", "executions", m.executions); err != nil {
		return nil, err
	}
	if err := reg.Register("engine", "duration", m.duration); err != nil {
		return nil, err
	}
	if err := reg.Register("engine", "node_errors", m.nodeErrors); err != nil {
		return nil, err
	}
	if err := reg.Register("engine", "in_flight", m.inFlight); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveExecution records a finished execution.
func (m *EngineMetrics) ObserveExecution(flow, step, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(flow, step, status).Inc()
	m.duration.WithLabelValues(flow, step).Observe(d.Seconds())
}

// NodeError records a failed node.
func (m *EngineMetrics) NodeError(flow, step, node string) {
	if m == nil {
		return
	}
	m.nodeErrors.WithLabelValues(flow, step, node).Inc()
}

// Begin increments the in-flight gauge and returns the matching decrement.
func (m *EngineMetrics) Begin() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
