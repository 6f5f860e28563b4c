package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "sensor_ingest_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	invocations       *prometheus.CounterVec
	invocationLatency *prometheus.HistogramVec
	metadataLookups   *prometheus.CounterVec
	sinkWrites        *prometheus.CounterVec
	sinkLatency       prometheus.Histogram
	deadLetters       *prometheus.CounterVec
	registeredTags    prometheus.Counter
)

// Init registers the collectors with reg. Calls after the first are no-ops.
func Init(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		invocations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "invocations_total",
				Help: "Handler invocations by outcome kind",
			},
			[]string{"outcome"},
		)
		invocationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "invocation_latency_seconds",
				Help:    "Handler latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)
		metadataLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "metadata_lookups_total",
				Help: "Metadata lookups by outcome",
			},
			[]string{"outcome"},
		)
		sinkWrites = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sink_writes_total",
				Help: "Time-series writes by result",
			},
			[]string{"result"},
		)
		sinkLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "sink_write_latency_seconds",
				Help:    "Time-series write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		deadLetters = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "dead_letters_total",
				Help: "Rejected events recorded by result",
			},
			[]string{"result"},
		)
		registeredTags = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "registered_tags_total",
				Help: "Tag names registered on the measurement schema after startup",
			},
		)

		reg.MustRegister(
			invocations,
			invocationLatency,
			metadataLookups,
			sinkWrites,
			sinkLatency,
			deadLetters,
			registeredTags,
		)
	})
}

func ObserveInvocation(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if invocations != nil {
		invocations.WithLabelValues(outcome).Inc()
	}
	if invocationLatency != nil {
		invocationLatency.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

func IncMetadataLookup(outcome string) {
	if outcome == "" {
		return
	}
	if metadataLookups != nil {
		metadataLookups.WithLabelValues(outcome).Inc()
	}
}

func ObserveSinkWrite(result string, duration time.Duration) {
	if sinkWrites != nil {
		sinkWrites.WithLabelValues(result).Inc()
	}
	if sinkLatency != nil {
		sinkLatency.Observe(duration.Seconds())
	}
}

func IncDeadLetter(result string) {
	if deadLetters != nil {
		deadLetters.WithLabelValues(result).Inc()
	}
}

func AddRegisteredTags(n int) {
	if n <= 0 {
		return
	}
	if registeredTags != nil {
		registeredTags.Add(float64(n))
	}
}
