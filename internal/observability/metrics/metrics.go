// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "smartspeech_client"

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Call metrics
	CallsTotal    *prometheus.CounterVec
	CallsActive   *prometheus.GaugeVec
	CallsFinished *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec

	// Outbound stream metrics
	WritesTotal   prometheus.Counter
	BytesSent     prometheus.Counter
	AlarmPolls    prometheus.Counter
	FeedsRejected prometheus.Counter

	// Inbound stream metrics
	ReadsTotal       *prometheus.CounterVec
	ResultsDelivered *prometheus.CounterVec
	BytesReceived    prometheus.Counter

	// Dispatcher metrics
	DispatchEvents *prometheus.CounterVec

	// RPC metrics, recorded by the client interceptors
	RPCsTotal   *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of calls started",
		}, []string{"kind"}),
		CallsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of calls that have not reached their terminal state",
		}, []string{"kind"}),
		CallsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_finished_total",
			Help:      "Total number of calls finished, by final status code",
		}, []string{"kind", "code"}),
		CallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Duration of calls from start to final status in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),

		WritesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Total number of outbound messages written",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total payload bytes written to duplex calls",
		}),
		AlarmPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_polls_total",
			Help:      "Total number of pacing timers armed while waiting for input",
		}),
		FeedsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feeds_rejected_total",
			Help:      "Total number of feeds rejected because input was already closed",
		}),

		ReadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Total number of inbound messages received",
		}, []string{"kind"}),
		ResultsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_delivered_total",
			Help:      "Total number of results handed to result sinks",
		}, []string{"kind", "type"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total payload bytes received by streamed-read calls",
		}),

		DispatchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_events_total",
			Help:      "Total number of completion events dispatched",
		}, []string{"cause", "ok"}),

		RPCsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpcs_total",
			Help:      "Total number of unary RPCs and stream opens, by status code",
		}, []string{"method", "code"}),
		RPCDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Duration of unary RPCs and stream opens in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordCallStart records a new call starting.
func (m *Metrics) RecordCallStart(kind string) {
	m.CallsTotal.WithLabelValues(kind).Inc()
	m.CallsActive.WithLabelValues(kind).Inc()
}

// RecordCallEnd records a call reaching its terminal state.
func (m *Metrics) RecordCallEnd(kind, code string, durationSeconds float64) {
	m.CallsActive.WithLabelValues(kind).Dec()
	m.CallDuration.WithLabelValues(kind).Observe(durationSeconds)
	m.CallsFinished.WithLabelValues(kind, code).Inc()
}

// RecordWrite records an outbound message carrying n payload bytes.
func (m *Metrics) RecordWrite(n int) {
	m.WritesTotal.Inc()
	m.BytesSent.Add(float64(n))
}

// RecordAlarm records a pacing timer being armed.
func (m *Metrics) RecordAlarm() {
	m.AlarmPolls.Inc()
}

// RecordFeedRejected records a feed refused after input was closed.
func (m *Metrics) RecordFeedRejected() {
	m.FeedsRejected.Inc()
}

// RecordRead records an inbound message for a call kind.
func (m *Metrics) RecordRead(kind string) {
	m.ReadsTotal.WithLabelValues(kind).Inc()
}

// RecordResult records a result handed to a sink.
func (m *Metrics) RecordResult(kind, resultType string) {
	m.ResultsDelivered.WithLabelValues(kind, resultType).Inc()
}

// RecordBytesReceived records payload bytes received by a streamed-read call.
func (m *Metrics) RecordBytesReceived(n int) {
	m.BytesReceived.Add(float64(n))
}

// RecordDispatch records one completion event routed by the dispatcher.
func (m *Metrics) RecordDispatch(cause string, ok bool) {
	m.DispatchEvents.WithLabelValues(cause, strconv.FormatBool(ok)).Inc()
}

// RecordRPC records a unary RPC or a stream open.
func (m *Metrics) RecordRPC(method, code string, durationSeconds float64) {
	m.RPCsTotal.WithLabelValues(method, code).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
