package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazydoc",
			Name:      "page_resolutions_total",
			Help:      "Total page resolutions by result (resolved, failed, cached, sticky)",
		},
		[]string{"result"},
	)

	resolutionLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lazydoc",
			Name:      "page_resolution_duration_seconds",
			Help:      "Duration of page geometry resolutions",
			Buckets:   prometheus.DefBuckets,
		},
	)

	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lazydoc",
			Name:      "resolutions_inflight",
			Help:      "Page resolutions currently in flight",
		},
	)

	rangeFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazydoc",
			Name:      "range_fetches_total",
			Help:      "Range fetches by source kind and result (ok, error, full_download)",
		},
		[]string{"source", "result"},
	)

	fetchBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazydoc",
			Name:      "fetch_bytes_total",
			Help:      "Bytes fetched from sources by kind",
		},
		[]string{"source"},
	)

	documentsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lazydoc",
			Name:      "documents_open",
			Help:      "Documents currently open",
		},
	)

	geometryCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lazydoc",
			Name:      "geometry_cache_events_total",
			Help:      "Geometry cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(resolutions, resolutionLatency, inflight, rangeFetches, fetchBytes, documentsOpen, geometryCacheEvents)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveResolution(result string, dur time.Duration) {
	resolutions.WithLabelValues(result).Inc()
	resolutionLatency.Observe(dur.Seconds())
}

func IncResolution(result string) { resolutions.WithLabelValues(result).Inc() }

func IncInflight() { inflight.Inc() }
func DecInflight() { inflight.Dec() }

func ObserveRangeFetch(source, result string, bytes int) {
	rangeFetches.WithLabelValues(source, result).Inc()
	if bytes > 0 {
		fetchBytes.WithLabelValues(source).Add(float64(bytes))
	}
}

func DocOpened() { documentsOpen.Inc() }
func DocClosed() { documentsOpen.Dec() }

func CacheHit()   { geometryCacheEvents.WithLabelValues("hit").Inc() }
func CacheMiss()  { geometryCacheEvents.WithLabelValues("miss").Inc() }
func CacheError() { geometryCacheEvents.WithLabelValues("error").Inc() }
