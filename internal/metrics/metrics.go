package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/felicity2mqtt/internal/core/service"
	"github.com/berfenger/felicity2mqtt/pkg/felicity_modbus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "felicity"

// Metrics collects bridge counters on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	modbusDuration    *prometheus.HistogramVec
	readAttemptErrors *prometheus.CounterVec
	readFailures      *prometheus.CounterVec
	publishes         *prometheus.CounterVec
	reconnects        *prometheus.CounterVec
	fieldValues       *prometheus.GaugeVec
	lastSnapshot      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		modbusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_request_duration_seconds",
			Help:      "Duration of single register modbus round trips",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"fn"}),
		readAttemptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_attempt_errors_total",
			Help:      "Failed register read attempts, retried or not",
		}, []string{"field"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Field reads that failed after every retry",
		}, []string{"field"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "Telemetry publishes by result",
		}, []string{"result"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_reconnects_total",
			Help:      "Bus reconnect attempts by result",
		}, []string{"result"}),
		fieldValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_value",
			Help:      "Last numeric value read for each field",
		}, []string{"field"}),
		lastSnapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time of the last non empty snapshot",
		}),
	}
	m.registry.MustRegister(
		m.modbusDuration,
		m.readAttemptErrors,
		m.readFailures,
		m.publishes,
		m.reconnects,
		m.fieldValues,
		m.lastSnapshot,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ModbusInstrument() *felicity_modbus.ModbusInstrument {
	return &felicity_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			m.modbusDuration.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

func (m *Metrics) ReadAttemptFailed(field string) {
	m.readAttemptErrors.WithLabelValues(field).Inc()
}

func (m *Metrics) ReadFailed(field string) {
	m.readFailures.WithLabelValues(field).Inc()
}

func (m *Metrics) Published(field string, err error) {
	m.publishes.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) Reconnected(err error) {
	m.reconnects.WithLabelValues(resultLabel(err)).Inc()
}

// ObserveSnapshot exports numeric fields as gauges. Labels are skipped.
func (m *Metrics) ObserveSnapshot(snapshot felicity_modbus.Snapshot) {
	if snapshot.IsEmpty() {
		return
	}
	for _, name := range snapshot.Names() {
		value, _ := snapshot.Get(name)
		if f, ok := value.Float64(); ok {
			m.fieldValues.WithLabelValues(name).Set(f)
		}
	}
	m.lastSnapshot.Set(float64(snapshot.At.Unix()))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ensure interface compliance
var _ felicity_modbus.ReadObserver = (*Metrics)(nil)
var _ service.PublishObserver = (*Metrics)(nil)
