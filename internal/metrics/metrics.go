// Package metrics exposes ledger and import counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry   *prometheus.Registry
	movements  *prometheus.CounterVec
	rejections *prometheus.CounterVec
	retries    prometheus.Counter
	importRows *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shipstore",
			Name:      "ledger_movements_total",
			Help:      "Stock movements committed to the ledger.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shipstore",
			Name:      "ledger_rejections_total",
			Help:      "Stock movements rejected before commit.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shipstore",
			Name:      "ledger_optimistic_retries_total",
			Help:      "Ledger units retried after a version conflict.",
		}),
		importRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shipstore",
			Name:      "import_rows_total",
			Help:      "Bulk import rows by outcome.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.movements, m.rejections, m.retries, m.importRows,
	)
	return m
}

func (m *Metrics) Movement(txnType string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(txnType).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) ImportRow(status string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(status).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
