package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetricsExportsCountersGaugesAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg)
	m.ObserveDuration("pull", 250*time.Millisecond)
	m.IncSuccess("pull")
	m.IncFailure("push", "TRANSIENT_NETWORK")
	m.IncFailure("", "")
	m.SetOutbox(3)
	m.SetBackoff(time.Minute)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	v, err := fetchCounterValue(mfs, "pos_sync_success_total", map[string]string{"phase": "pull"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = fetchCounterValue(mfs, "pos_sync_failure_total", map[string]string{"phase": "push", "code": "TRANSIENT_NETWORK"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = fetchCounterValue(mfs, "pos_sync_failure_total", map[string]string{"phase": "unknown", "code": "unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	mf := findMetricFamily(mfs, "pos_sync_duration_seconds")
	require.NotNil(t, mf)
	assert.Greater(t, mf.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0)

	assert.Equal(t, 3.0, findMetricFamily(mfs, "pos_outbox_pending").GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 60.0, findMetricFamily(mfs, "pos_sync_backoff_seconds").GetMetric()[0].GetGauge().GetValue())
}

func TestNilSyncMetricsAreSafe(t *testing.T) {
	var m *SyncMetrics
	m.IncSuccess("pull")
	m.SetOutbox(1)
	NewSyncMetrics(nil).IncFailure("pull", "x")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name string, labels map[string]string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabels(metric.GetLabel(), labels) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing labels %v", name, labels)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if v, ok := want[pair.GetName()]; ok && v == pair.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
