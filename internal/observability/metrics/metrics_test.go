package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobsStarted.WithLabelValues("m_42").Inc()
	m.JobsCompleted.Inc()
	m.JobsFailed.WithLabelValues("Notified", "PERMANENT").Inc()
	m.JobsDeduped.Inc()
	m.Notifications.WithLabelValues("SENT").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsStarted.WithLabelValues("m_42")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsFailed.WithLabelValues("Notified", "PERMANENT")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.JobsDeduped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues("SENT")))
}

func TestMetricsDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
