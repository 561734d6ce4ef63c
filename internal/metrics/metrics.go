package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebookconv",
			Name:      "conversions_total",
			Help:      "Total conversions by source, target, path and result",
		},
		[]string{"source", "target", "path", "result"},
	)

	conversionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebookconv",
			Name:      "conversion_duration_seconds",
			Help:      "Duration of conversions by path",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	remoteReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebookconv",
			Name:      "remote_requests_total",
			Help:      "Total remote conversion requests by provider and result",
		},
		[]string{"provider", "result"},
	)

	remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ebookconv",
			Name:      "remote_request_duration_seconds",
			Help:      "Duration of remote conversion requests by provider",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)

	batchFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebookconv",
			Name:      "batch_files_total",
			Help:      "Files processed in batches by result (success, error)",
		},
		[]string{"result"},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ebookconv",
			Name:      "breaker_events_total",
			Help:      "Circuit breaker events by provider and action",
		},
		[]string{"provider", "action"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(conversions, conversionLatency, remoteReqs, remoteLatency, batchFiles, breakerEvents)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveConversion(source, target, path, result string, dur time.Duration) {
	conversions.WithLabelValues(source, target, path, result).Inc()
	conversionLatency.WithLabelValues(path).Observe(dur.Seconds())
}

func ObserveRemote(provider, result string, dur time.Duration) {
	remoteReqs.WithLabelValues(provider, result).Inc()
	remoteLatency.WithLabelValues(provider).Observe(dur.Seconds())
}

func IncBatchFile(result string)    { batchFiles.WithLabelValues(result).Inc() }
func BreakerOpened(provider string) { breakerEvents.WithLabelValues(provider, "opened").Inc() }
func BreakerClosed(provider string) { breakerEvents.WithLabelValues(provider, "closed").Inc() }
