package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

const (
	namespace = "crypto_alerts"
	subsystem = "monitor"

	ResultOK    = "ok"
	ResultError = "error"
	ResultPanic = "panic"
)

// MonitorMetrics holds every collector of the price monitor
type MonitorMetrics struct {
	Cycles          *prometheus.CounterVec
	CyclesSkipped   prometheus.Counter
	CycleDuration   prometheus.Histogram
	AlertsTriggered prometheus.Counter
	ResolveFailures prometheus.Counter
	SinkFailures    *prometheus.CounterVec
	RealtimeClients prometheus.Gauge
}

// Store persists cumulative counters between restarts
type Store interface {
	SaveMetric(ctx context.Context, name string, value float64) error
	GetMetric(ctx context.Context, name string) (float64, error)
}

func New(reg prometheus.Registerer) *MonitorMetrics {
	m := &MonitorMetrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Poll cycles by outcome",
		}, []string{"result"}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_skipped_total",
			Help:      "Ticks dropped because the previous cycle was still running",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "alerts_triggered_total",
			Help:      "Alerts resolved and notified",
		}),
		ResolveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resolve_failures_total",
			Help:      "Alerts left unresolved because the store write failed",
		}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sink_failures_total",
			Help:      "Notification deliveries that failed, per sink",
		}, []string{"sink"}),
		RealtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "clients",
			Help:      "Connected real-time clients",
		}),
	}

	reg.MustRegister(
		m.Cycles,
		m.CyclesSkipped,
		m.CycleDuration,
		m.AlertsTriggered,
		m.ResolveFailures,
		m.SinkFailures,
		m.RealtimeClients,
	)
	return m
}

// persisted counters and their storage names
func (m *MonitorMetrics) persisted() map[string]prometheus.Counter {
	return map[string]prometheus.Counter{
		"alerts_triggered": m.AlertsTriggered,
		"cycles_completed": m.Cycles.WithLabelValues(ResultOK),
		"cycles_failed":    m.Cycles.WithLabelValues(ResultError),
	}
}

func (m *MonitorMetrics) LoadFrom(ctx context.Context, store Store) {
	for name, counter := range m.persisted() {
		value, err := store.GetMetric(ctx, name)
		if err != nil {
			log.Warnf("Failed to load metric %s: %v", name, err)
			continue
		}
		counter.Add(value)
	}
	log.Info("Metrics loaded from database.")
}

func (m *MonitorMetrics) SaveTo(ctx context.Context, store Store) {
	for name, counter := range m.persisted() {
		if err := store.SaveMetric(ctx, name, GetMetricValue(counter)); err != nil {
			log.Warnf("Failed to save metric %s: %v", name, err)
		}
	}
	log.Info("Metrics saved to database.")
}

// GetMetricValue reads the current value of a single counter or gauge
func GetMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Warnf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
