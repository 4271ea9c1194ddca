package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConsoleMetrics exposes counters/histograms for backend calls and dispatches.
type ConsoleMetrics struct {
	requestsTotal   *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewConsoleMetrics(reg prometheus.Registerer) *ConsoleMetrics {
	m := &ConsoleMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "console",
			Name:      "backend_requests_total",
			Help:      "Total backend API requests",
		}, []string{"role", "outcome"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "console",
			Name:      "dispatch_total",
			Help:      "Total user-intent dispatches",
		}, []string{"action", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "console",
			Name:      "backend_request_seconds",
			Help:      "Latency of backend API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.dispatchTotal, m.requestDuration)
	return m
}

func (m *ConsoleMetrics) ObserveRequest(role, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(role, outcome).Inc()
	m.requestDuration.WithLabelValues(role).Observe(seconds)
}

func (m *ConsoleMetrics) ObserveDispatch(action, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(action, outcome).Inc()
}
