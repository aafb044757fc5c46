package metrics

import "github.com/prometheus/client_golang/prometheus"

// ToolMetrics exposes counters/histograms for tool invocations.
type ToolMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

func NewToolMetrics(reg prometheus.Registerer) *ToolMetrics {
	m := &ToolMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yclients_mcp",
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by outcome",
		}, []string{"tool", "status"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yclients_mcp",
			Name:      "tool_duration_seconds",
			Help:      "Latency of tool invocations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.callDuration)
	return m
}

// ObserveCall records one tool invocation. status is "ok" or "error".
func (m *ToolMetrics) ObserveCall(tool, status string, seconds float64) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(tool, status).Inc()
	m.callDuration.WithLabelValues(tool).Observe(seconds)
}

// BackendMetrics exposes counters/histograms for YClients API requests.
type BackendMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewBackendMetrics(reg prometheus.Registerer) *BackendMetrics {
	m := &BackendMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yclients_mcp",
			Name:      "backend_requests_total",
			Help:      "Total YClients API requests by operation and HTTP status",
		}, []string{"operation", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yclients_mcp",
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of YClients API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

// ObserveRequest records one backend round trip. status is the HTTP status
// code, or "transport_error" when no response was received.
func (m *BackendMetrics) ObserveRequest(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(seconds)
}
