package gen

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Pool. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Generated     prometheus.Counter
	AlreadyValid  prometheus.Counter
	Shed          prometheus.Counter
	Failed        prometheus.Counter
	QueueWarnings prometheus.Counter
	Duration      prometheus.Histogram
}

// NewMetrics creates the collectors of a Pool and registers them with reg.
// If reg is nil, the collectors are created but not registered.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		Generated:     counter("chunks_generated_total", "Total number of chunks generated and committed."),
		AlreadyValid:  counter("chunks_already_valid_total", "Total number of chunks skipped because they were already generated."),
		Shed:          counter("chunks_shed_total", "Total number of chunks skipped because the queue was overloaded."),
		Failed:        counter("chunks_failed_total", "Total number of chunks whose generation panicked."),
		QueueWarnings: counter("queue_warnings_total", "Total number of chunks queued while the queue was above the warning threshold."),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunk_generation_seconds",
			Help:      "Time taken to generate and commit a chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Generated, m.AlreadyValid, m.Shed, m.Failed, m.QueueWarnings, m.Duration)
	}
	return m
}

func (m *Metrics) generated(d time.Duration) {
	if m == nil {
		return
	}
	m.Generated.Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) alreadyValid() {
	if m != nil {
		m.AlreadyValid.Inc()
	}
}

func (m *Metrics) shed() {
	if m != nil {
		m.Shed.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failed.Inc()
	}
}

func (m *Metrics) queueWarning() {
	if m != nil {
		m.QueueWarnings.Inc()
	}
}
