// Package metrics provides Prometheus instrumentation for the tracker.
//
// Metrics exposed:
//   - peakwatch_fetch_duration_seconds: Histogram of upstream fetch latency
//   - peakwatch_observations_total: Counter of observations by result (record, no_change)
//   - peakwatch_errors_total: Counter of failed ticks by component and reason
//   - peakwatch_current_high: Gauge of the all-time high
//   - peakwatch_records_total: Counter of new records set since start
//   - peakwatch_notifications_total: Counter of deliveries by channel and status
//   - peakwatch_last_tick_timestamp_seconds: Gauge of the last completed tick
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FetchDuration  prometheus.Histogram
	Observations   *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	CurrentHigh    prometheus.Gauge
	RecordsTotal   prometheus.Counter
	Notifications  *prometheus.CounterVec
	LastTickSecond prometheus.Gauge
}

// New registers the tracker metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer, metric string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	labels := prometheus.Labels{"metric": metric}

	return &Metrics{
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "peakwatch_fetch_duration_seconds",
			Help:        "Time spent fetching the current value from upstream",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		Observations: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "peakwatch_observations_total",
			Help:        "Total number of accepted observations by result",
			ConstLabels: labels,
		}, []string{"result"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "peakwatch_errors_total",
			Help:        "Total number of failed ticks by component and reason",
			ConstLabels: labels,
		}, []string{"component", "reason"}),
		CurrentHigh: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "peakwatch_current_high",
			Help:        "Current all-time high",
			ConstLabels: labels,
		}),
		RecordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "peakwatch_records_total",
			Help:        "Total number of new records set since start",
			ConstLabels: labels,
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "peakwatch_notifications_total",
			Help:        "Total number of notification deliveries by channel and status",
			ConstLabels: labels,
		}, []string{"channel", "status"}),
		LastTickSecond: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "peakwatch_last_tick_timestamp_seconds",
			Help:        "Unix time of the last completed tick",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) RecordFetch(seconds float64) {
	m.FetchDuration.Observe(seconds)
}

// RecordObservation counts an accepted value and tracks the high.
func (m *Metrics) RecordObservation(newRecord bool, currentHigh int64) {
	if newRecord {
		m.Observations.WithLabelValues("record").Inc()
		m.RecordsTotal.Inc()
	} else {
		m.Observations.WithLabelValues("no_change").Inc()
	}
	m.CurrentHigh.Set(float64(currentHigh))
}

func (m *Metrics) SetCurrentHigh(v int64) {
	m.CurrentHigh.Set(float64(v))
}

func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func (m *Metrics) MarkTick(t time.Time) {
	m.LastTickSecond.Set(float64(t.Unix()))
}

// RecordNotification implements notify.Recorder.
func (m *Metrics) RecordNotification(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.Notifications.WithLabelValues(channel, status).Inc()
}
