package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ingestion outcomes reported per adapter and source.
const (
	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// IngestionMetrics tracks conversion intake and matching work.
type IngestionMetrics struct {
	conversions    *prometheus.CounterVec
	statusFallback *prometheus.CounterVec
	matchDuration  *prometheus.HistogramVec
	pollRecords    *prometheus.CounterVec
}

// NewIngestionMetrics registers the ingestion metrics on reg. A nil registerer
// yields a no-op recorder.
func NewIngestionMetrics(reg prometheus.Registerer) *IngestionMetrics {
	if reg == nil {
		return &IngestionMetrics{}
	}
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversions_total",
		Help:      "Conversion deliveries by adapter, source and outcome.",
	}, []string{"adapter", "source", "outcome"})
	statusFallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_fallback_total",
		Help:      "Postbacks whose status code was unknown and recorded as pending.",
	}, []string{"source", "code"})
	matchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_duration_seconds",
		Help:      "Time spent scoring click candidates for conversions.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})
	pollRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_records_total",
		Help:      "Records fetched by poll runs, by result.",
	}, []string{"source", "result"})
	reg.MustRegister(conversions, statusFallback, matchDuration, pollRecords)
	return &IngestionMetrics{
		conversions:    conversions,
		statusFallback: statusFallback,
		matchDuration:  matchDuration,
		pollRecords:    pollRecords,
	}
}

// IncConversion counts one delivery outcome.
func (m *IngestionMetrics) IncConversion(adapter, source, outcome string) {
	if m == nil || m.conversions == nil {
		return
	}
	m.conversions.WithLabelValues(normalizeLabel(adapter), normalizeLabel(strings.ToLower(source)), normalizeLabel(outcome)).Inc()
}

func (m *IngestionMetrics) IncStatusFallback(source, code string) {
	if m == nil || m.statusFallback == nil {
		return
	}
	m.statusFallback.WithLabelValues(normalizeLabel(strings.ToLower(source)), normalizeLabel(code)).Inc()
}

// ObserveMatch records a matching run; mode is "single" or "batch".
func (m *IngestionMetrics) ObserveMatch(mode string, duration time.Duration) {
	if m == nil || m.matchDuration == nil {
		return
	}
	m.matchDuration.WithLabelValues(normalizeLabel(mode)).Observe(duration.Seconds())
}

// AddPollRecords adds n to the poll record counter for result.
func (m *IngestionMetrics) AddPollRecords(source, result string, n int) {
	if m == nil || m.pollRecords == nil || n <= 0 {
		return
	}
	m.pollRecords.WithLabelValues(normalizeLabel(strings.ToLower(source)), normalizeLabel(result)).Add(float64(n))
}
