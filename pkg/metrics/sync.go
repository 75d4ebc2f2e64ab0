// Package metrics exports sync loop instrumentation for prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pos"

// SyncMetrics records each sync phase (pull, push, bootstrap) plus the outbox
// depth and the current retry delay. A nil receiver or nil registerer turns
// every call into a no-op.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	outbox   prometheus.Gauge
	backoff  prometheus.Gauge
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Duration of sync phases in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_success_total",
		Help:      "Successful sync phase executions.",
	}, []string{"phase"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_failure_total",
		Help:      "Failed sync phase executions, by error code.",
	}, []string{"phase", "code"})
	outbox := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_pending",
		Help:      "Completed orders waiting for server acknowledgement.",
	})
	backoff := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sync_backoff_seconds",
		Help:      "Delay before the next sync attempt.",
	})
	reg.MustRegister(duration, success, failure, outbox, backoff)
	return &SyncMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		outbox:   outbox,
		backoff:  backoff,
	}
}

func (m *SyncMetrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(phase)).Observe(d.Seconds())
}

func (m *SyncMetrics) IncSuccess(phase string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(phase)).Inc()
}

func (m *SyncMetrics) IncFailure(phase, code string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(phase), normalizeLabel(code)).Inc()
}

func (m *SyncMetrics) SetOutbox(n int64) {
	if m == nil || m.outbox == nil {
		return
	}
	m.outbox.Set(float64(n))
}

func (m *SyncMetrics) SetBackoff(d time.Duration) {
	if m == nil || m.backoff == nil {
		return
	}
	m.backoff.Set(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
