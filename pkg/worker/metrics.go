package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the worker pool's Prometheus instruments. Callers register
// them once per process with prometheus.MustRegister (or via a custom
// registry) and pass the result to New.
type Metrics struct {
	ActiveJobs   prometheus.Gauge
	ClaimedTotal prometheus.Counter
	CompletedTotal *prometheus.CounterVec
}

// NewMetrics builds the standard instrument set, namespaced jobforge_worker.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jobforge", Subsystem: "worker", Name: "active_jobs",
			Help: "Number of job tasks currently executing on this worker.",
		}),
		ClaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jobforge", Subsystem: "worker", Name: "claimed_total",
			Help: "Total jobs claimed by this worker.",
		}),
		CompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobforge", Subsystem: "worker", Name: "completed_total",
			Help: "Total jobs completed by this worker, labeled by resulting status.",
		}, []string{"status"}),
	}
}

// Register adds every instrument to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.ActiveJobs, m.ClaimedTotal, m.CompletedTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
