package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "bessmon"

const (
	KindReading = "reading"
	KindAlarm   = "alarm"
)

// Metrics groups the instruments of both processes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	relayDepth      prometheus.Gauge
	received        *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	persisted       *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	cycleFailures   prometheus.Counter
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	alarmsRaised    *prometheus.CounterVec
	connected       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		relayDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_depth",
			Help:      "Messages buffered between the transport and the render loop.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages handed to the relay by the transport.",
		}, []string{"topic"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Payloads dropped because they could not be decoded.",
		}, []string{"kind"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_persisted_total",
			Help:      "Rows inserted by the render loop.",
		}, []string{"table"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_cycle_duration_seconds",
			Help:      "Duration of one drain, persist, query and render cycle.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_cycle_failures_total",
			Help:      "Render cycles aborted by a storage error.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_total",
			Help:      "Messages published by the simulator.",
		}, []string{"kind"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Simulator publishes that returned an error.",
		}, []string{"kind"}),
		alarmsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_raised_total",
			Help:      "Alarms raised by the threshold check.",
		}, []string{"id_bess", "tipo_alarme"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 when the transport reports an open connection.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.relayDepth,
		m.received,
		m.decodeFailures,
		m.persisted,
		m.cycleDuration,
		m.cycleFailures,
		m.published,
		m.publishFailures,
		m.alarmsRaised,
		m.connected,
	)
	return m
}

func (m *Metrics) SetRelayDepth(n int) {
	if m == nil {
		return
	}
	m.relayDepth.Set(float64(n))
}

func (m *Metrics) Received(topic string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(topic).Inc()
}

func (m *Metrics) DecodeFailed(kind string) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Persisted(table string) {
	if m == nil {
		return
	}
	m.persisted.WithLabelValues(table).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.cycleDuration.Observe(d.Seconds())
	if err != nil {
		m.cycleFailures.Inc()
	}
}

func (m *Metrics) Published(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishFailures.WithLabelValues(kind).Inc()
		return
	}
	m.published.WithLabelValues(kind).Inc()
}

func (m *Metrics) AlarmRaised(bessID, kind string) {
	if m == nil {
		return
	}
	m.alarmsRaised.WithLabelValues(bessID, kind).Inc()
}

func (m *Metrics) SetConnected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
