package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_sampler"

// Outcome labels for the cycles counter.
const (
	OutcomeSuccess              = "success"
	OutcomeSkipped              = "skipped"
	OutcomeFetchFailed          = "fetch_failed"
	OutcomeFetchRejected        = "fetch_rejected"
	OutcomeFetchMalformed       = "fetch_malformed"
	OutcomePublishConnectFailed = "publish_connect_failed"
	OutcomePublishFailed        = "publish_failed"
)

// Recorder is what a cycle reports to.
type Recorder interface {
	CycleFinished(outcome string)
	FetchDuration(seconds float64)
	CaptureToAck(seconds float64)
	ConnectAttempt(err error)
	LastSuccess(unixSeconds float64)
}

// PromMetrics implements Recorder on Prometheus collectors.
type PromMetrics struct {
	cycles          *prometheus.CounterVec
	connectAttempts *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	ackLatency      prometheus.Histogram
	lastSuccess     prometheus.Gauge
}

// NewPromMetrics creates the collectors and registers them with reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sampling cycles by outcome.",
		}, []string{"outcome"}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_connect_attempts_total",
			Help:      "Broker connection attempts by result.",
		}, []string{"result"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of the upstream weather request.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ackLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_to_ack_seconds",
			Help:      "Time from capture to broker acknowledgement.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Capture time of the last reading acknowledged by the broker.",
		}),
	}

	reg.MustRegister(m.cycles, m.connectAttempts, m.fetchLatency, m.ackLatency, m.lastSuccess)
	return m
}

func (m *PromMetrics) CycleFinished(outcome string) {
	m.cycles.WithLabelValues(outcome).Inc()
}

func (m *PromMetrics) FetchDuration(seconds float64) {
	m.fetchLatency.Observe(seconds)
}

func (m *PromMetrics) CaptureToAck(seconds float64) {
	m.ackLatency.Observe(seconds)
}

func (m *PromMetrics) ConnectAttempt(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *PromMetrics) LastSuccess(unixSeconds float64) {
	m.lastSuccess.Set(unixSeconds)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CycleFinished(string)  {}
func (Nop) FetchDuration(float64) {}
func (Nop) CaptureToAck(float64)  {}
func (Nop) ConnectAttempt(error)  {}
func (Nop) LastSuccess(float64)   {}
