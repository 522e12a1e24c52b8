package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the gateway's Prometheus instrumentation surface: plain
// counters and gauges registered against a private registry, updated
// inline as events happen, rather than a custom Collector that samples
// state at scrape time. There's no dynamic pool to sample here, so a
// Collect-time pull buys nothing over just incrementing a counter when
// the event occurs.
type Metrics struct {
	registry *prometheus.Registry

	sessionsOpen     prometheus.Gauge
	sessionsTotal    prometheus.Counter
	admissionAccept  prometheus.Counter
	admissionReject  prometheus.Counter
	decodeErrors     prometheus.Counter
	framesDecoded    prometheus.Counter
	recordsWritten   prometheus.Counter
	storeErrors      prometheus.Counter
	connRxBytes      prometheus.Counter
	connTxBytes      prometheus.Counter
}

// NewMetrics constructs and registers every gateway metric against a
// fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_sessions_open",
			Help: "Currently open device TCP sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_sessions_total",
			Help: "Total TCP sessions accepted.",
		}),
		admissionAccept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_admission_accepted_total",
			Help: "Sessions whose IMEI passed the allow-list check.",
		}),
		admissionReject: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_admission_rejected_total",
			Help: "Sessions whose IMEI failed the allow-list check.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_decode_errors_total",
			Help: "AVL frames dropped due to a decode error.",
		}),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_frames_decoded_total",
			Help: "AVL frames successfully decoded and acked.",
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_records_written_total",
			Help: "Normalized records handed to the store.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_store_errors_total",
			Help: "Store operations that returned an error.",
		}),
		connRxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_connection_rx_bytes_total",
			Help: "Bytes received across all sessions, sampled by the liveness ticker.",
		}),
		connTxBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_connection_tx_bytes_total",
			Help: "Bytes sent across all sessions, sampled by the liveness ticker.",
		}),
	}
	reg.MustRegister(
		m.sessionsOpen, m.sessionsTotal, m.admissionAccept, m.admissionReject,
		m.decodeErrors, m.framesDecoded, m.recordsWritten, m.storeErrors,
		m.connRxBytes, m.connTxBytes,
	)
	return m
}

// Handler serves /metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpen.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsOpen.Dec()
}

func (m *Metrics) AdmissionAccepted() {
	if m == nil {
		return
	}
	m.admissionAccept.Inc()
}

func (m *Metrics) AdmissionRejected() {
	if m == nil {
		return
	}
	m.admissionReject.Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) FramesDecoded(n int) {
	if m == nil {
		return
	}
	m.framesDecoded.Add(float64(n))
}

func (m *Metrics) RecordsWritten(n int) {
	if m == nil {
		return
	}
	m.recordsWritten.Add(float64(n))
}

func (m *Metrics) StoreError() {
	if m == nil {
		return
	}
	m.storeErrors.Inc()
}

// ConnectionBytes adds a liveness-sampled byte-counter delta since the
// previous sample; callers (the session package's liveness ticker) are
// responsible for subtracting their own last-seen cumulative total
// before calling this.
func (m *Metrics) ConnectionBytes(rx, tx int64) {
	if m == nil {
		return
	}
	if rx > 0 {
		m.connRxBytes.Add(float64(rx))
	}
	if tx > 0 {
		m.connTxBytes.Add(float64(tx))
	}
}
