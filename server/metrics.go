package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/planlens/planlens/orchestrator"
)

// Collector exports the orchestrator's counters as Prometheus metrics. The
// orchestrator keeps plain counters behind its own mutex; the collector
// reads a snapshot on each scrape rather than double-counting into a second
// set of counters.
type Collector struct {
	orch *orchestrator.Orchestrator

	dispatched     *prometheus.Desc
	delivered      *prometheus.Desc
	rejected       *prometheus.Desc
	deduplicated   *prometheus.Desc
	deadLettered   *prometheus.Desc
	consumerErrors *prometheus.Desc
	healthy        *prometheus.Desc
}

// NewCollector creates a collector over the given orchestrator.
func NewCollector(orch *orchestrator.Orchestrator) *Collector {
	return &Collector{
		orch: orch,
		dispatched: prometheus.NewDesc("planlens_signals_dispatched_total",
			"Signals submitted to dispatch.", nil, nil),
		delivered: prometheus.NewDesc("planlens_signals_delivered_total",
			"Signals delivered to at least one consumer.", nil, nil),
		rejected: prometheus.NewDesc("planlens_signals_rejected_total",
			"Signals rejected by a validation gate.", nil, nil),
		deduplicated: prometheus.NewDesc("planlens_signals_deduplicated_total",
			"Signals suppressed as duplicates inside the dedup window.", nil, nil),
		deadLettered: prometheus.NewDesc("planlens_dead_letters_total",
			"Dead-letter records produced.", nil, nil),
		consumerErrors: prometheus.NewDesc("planlens_consumer_errors_total",
			"Consumer handler failures.", nil, nil),
		healthy: prometheus.NewDesc("planlens_orchestrator_healthy",
			"1 when the orchestrator reports HEALTHY, 0 when DEGRADED.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dispatched
	ch <- c.delivered
	ch <- c.rejected
	ch <- c.deduplicated
	ch <- c.deadLettered
	ch <- c.consumerErrors
	ch <- c.healthy
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.orch.MetricsSnapshot()

	ch <- prometheus.MustNewConstMetric(c.dispatched, prometheus.CounterValue, float64(m.Dispatched))
	ch <- prometheus.MustNewConstMetric(c.delivered, prometheus.CounterValue, float64(m.Delivered))
	ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(m.Rejected))
	ch <- prometheus.MustNewConstMetric(c.deduplicated, prometheus.CounterValue, float64(m.Deduplicated))
	ch <- prometheus.MustNewConstMetric(c.deadLettered, prometheus.CounterValue, float64(m.DeadLettered))
	ch <- prometheus.MustNewConstMetric(c.consumerErrors, prometheus.CounterValue, float64(m.ConsumerErrors))

	healthVal := 0.0
	if c.orch.HealthCheck().Status == orchestrator.Healthy {
		healthVal = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.healthy, prometheus.GaugeValue, healthVal)
}
