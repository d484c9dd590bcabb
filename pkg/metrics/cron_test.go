package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "conversion-poll"

	m.ObserveRun(job, 250*time.Millisecond, nil)
	m.ObserveRun(job, time.Second, errors.New("source down"))
	m.IncSkipped(job)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, CronSucceeded)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, CronFailed)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(job, CronSkipped)))
	assert.Greater(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)), float64(0))

	count, err := testutil.GatherAndCount(reg, "convtrack_cron_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCronJobMetricsNilRegistererIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveRun("", time.Second, nil)
	m.IncSkipped("")

	var nilMetrics *CronJobMetrics
	nilMetrics.ObserveRun("job", time.Second, errors.New("x"))
}
