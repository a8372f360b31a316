package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records node executions and variable writes in Prometheus collectors.
type Metrics struct {
	registry   *prometheus.Registry
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	waiting    prometheus.Gauge
	variables  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodeweave_node_executions_total",
				Help: "Finished node executions by node type and outcome",
			},
			[]string{"node_type", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nodeweave_node_duration_seconds",
				Help:    "Duration of node executions",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"node_type"},
		),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nodeweave_nodes_waiting",
			Help: "Nodes currently waiting for human input",
		}),
		variables: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nodeweave_variable_changes_total",
				Help: "Committed variable mutations by operation",
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(m.executions, m.duration, m.waiting, m.variables)
	return m
}

// Registry exposes the registry, e.g. to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStatusChange: func(_ context.Context, e *domain.NodeEvent) {
			switch e.To {
			case domain.StatusWaiting:
				m.waiting.Inc()
			case domain.StatusSuccess, domain.StatusError:
				m.executions.WithLabelValues(e.NodeType, string(e.To)).Inc()
				m.duration.WithLabelValues(e.NodeType).Observe(e.Duration.Seconds())
			}
			if e.From == domain.StatusWaiting {
				m.waiting.Dec()
			}
		},
		OnVariableChange: func(_ context.Context, e *domain.VariableEvent) {
			m.variables.WithLabelValues(string(e.Op)).Inc()
		},
	}
}
