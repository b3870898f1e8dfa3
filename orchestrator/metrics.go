package orchestrator

import "time"

// Metrics is a point-in-time snapshot of the orchestrator's counters.
type Metrics struct {
	Dispatched     int64 `json:"dispatched"`
	Delivered      int64 `json:"delivered"`
	Rejected       int64 `json:"rejected"`
	Deduplicated   int64 `json:"deduplicated"`
	DeadLettered   int64 `json:"dead_lettered"`
	ConsumerErrors int64 `json:"consumer_errors"`
}

// MetricsSnapshot returns the current counter values.
func (o *Orchestrator) MetricsSnapshot() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	return Metrics{
		Dispatched:     o.counters.dispatched,
		Delivered:      o.counters.delivered,
		Rejected:       o.counters.rejected,
		Deduplicated:   o.counters.deduplicated,
		DeadLettered:   o.counters.deadLettered,
		ConsumerErrors: o.counters.consumerErrors,
	}
}

// Health thresholds: above either ratio the orchestrator reports DEGRADED.
const (
	maxDeadLetterRate    = 0.10
	maxConsumerErrorRate = 0.05
)

// HealthState is the orchestrator's overall condition.
type HealthState string

const (
	Healthy  HealthState = "HEALTHY"
	Degraded HealthState = "DEGRADED"
)

// Health reports the orchestrator's condition with the ratios it was judged
// on.
type Health struct {
	Status            HealthState `json:"status"`
	DeadLetterRate    float64     `json:"dead_letter_rate"`
	ConsumerErrorRate float64     `json:"consumer_error_rate"`
	CheckedAt         time.Time   `json:"checked_at"`
	Metrics           Metrics     `json:"metrics"`
}

// HealthCheck returns HEALTHY when fewer than 10% of dispatches dead-letter
// and fewer than 5% of deliveries see a consumer error; both ratios are zero
// when their denominators are. Otherwise DEGRADED.
func (o *Orchestrator) HealthCheck() Health {
	m := o.MetricsSnapshot()

	var dlRate, errRate float64
	if m.Dispatched > 0 {
		dlRate = float64(m.DeadLettered) / float64(m.Dispatched)
	}
	if m.Delivered > 0 {
		errRate = float64(m.ConsumerErrors) / float64(m.Delivered)
	}

	status := Healthy
	if dlRate >= maxDeadLetterRate || errRate >= maxConsumerErrorRate {
		status = Degraded
	}

	return Health{
		Status:            status,
		DeadLetterRate:    dlRate,
		ConsumerErrorRate: errRate,
		CheckedAt:         time.Now().UTC(),
		Metrics:           m,
	}
}
