package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons reported by the receive path.
const (
	DropReasonMalformed       = "malformed"
	DropReasonMissingClientID = "missing_client_id"
	DropReasonUnknownUpdate   = "unknown_update"
	DropReasonUnmatched       = "unmatched_response"
)

// BridgeMetrics tracks what the correlation bridge does with engine traffic.
// Dropped documents are deliberately invisible to control flow, so the
// counters are the only place they surface.
//
// A nil *BridgeMetrics is valid and records nothing.
type BridgeMetrics struct {
	requestsTotal    prometheus.Counter
	responsesTotal   prometheus.Counter
	updatesTotal     *prometheus.CounterVec
	droppedTotal     *prometheus.CounterVec
	rateLimitRetries prometheus.Counter
	pendingRequests  prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "enginemux",
		Subsystem: "bridge",
		Name:      name,
		Help:      help,
	})
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "enginemux",
			Subsystem: "bridge",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewBridgeMetrics creates a new metrics collector.
func NewBridgeMetrics(registerer prometheus.Registerer) *BridgeMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &BridgeMetrics{
		registerer:       registerer,
		requestsTotal:    newCounter("requests_total", "Total number of requests sent to the engine, including retried attempts"),
		responsesTotal:   newCounter("responses_total", "Total number of correlated responses delivered to waiting callers"),
		updatesTotal:     newCounterVec("updates_total", "Total number of unsolicited updates decoded and handed to the consumer", []string{"type"}),
		droppedTotal:     newCounterVec("dropped_total", "Total number of inbound documents dropped without reaching a caller", []string{"reason"}),
		rateLimitRetries: newCounter("rate_limit_retries_total", "Total number of requests re-issued after an engine-mandated backoff"),
		pendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "enginemux",
			Subsystem: "bridge",
			Name:      "pending_requests",
			Help:      "Number of requests currently awaiting a correlated response",
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *BridgeMetrics) Register() error {
	if m == nil || m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.responsesTotal,
		m.updatesTotal,
		m.droppedTotal,
		m.rateLimitRetries,
		m.pendingRequests,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// RecordRequest records one request attempt being sent.
func (m *BridgeMetrics) RecordRequest() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
	m.pendingRequests.Inc()
}

// RecordResponse records a correlated response reaching its waiter.
func (m *BridgeMetrics) RecordResponse() {
	if m == nil {
		return
	}
	m.responsesTotal.Inc()
	m.pendingRequests.Dec()
}

// RecordRequestDone records a request attempt ending without a delivered
// response (send failure, cancellation, aborted waiter).
func (m *BridgeMetrics) RecordRequestDone() {
	if m == nil {
		return
	}
	m.pendingRequests.Dec()
}

// RecordUpdate records a decoded update by discriminator.
func (m *BridgeMetrics) RecordUpdate(typeName string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(typeName).Inc()
}

// RecordDropped records an inbound document dropped for the given reason.
func (m *BridgeMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimitRetry records one engine-mandated backoff and re-issue.
func (m *BridgeMetrics) RecordRateLimitRetry() {
	if m == nil {
		return
	}
	m.rateLimitRetries.Inc()
}
