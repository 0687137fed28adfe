package workpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors updated by a Pool. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Submitted prometheus.Counter
	Processed prometheus.Counter
	Queued    prometheus.Gauge
}

// NewMetrics creates the collectors of a Pool and registers them with reg.
// If reg is nil, the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool.",
		}),
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_processed_total",
			Help:      "Total number of tasks processed by a worker.",
		}),
		Queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_queued",
			Help:      "Number of tasks waiting in the queue.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Processed, m.Queued)
	}
	return m
}

func (m *Metrics) submitted(queued int64) {
	if m == nil {
		return
	}
	m.Submitted.Inc()
	m.Queued.Set(float64(queued))
}

func (m *Metrics) dequeued(queued int64) {
	if m == nil {
		return
	}
	m.Queued.Set(float64(queued))
}

func (m *Metrics) processed() {
	if m == nil {
		return
	}
	m.Processed.Inc()
}
