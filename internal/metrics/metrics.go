// Package metrics exposes Prometheus collectors for the archive service.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	archiveFetchesTotal        *prometheus.CounterVec
	archiveFetchedBytesTotal   *prometheus.CounterVec
	archiveEnqueuesTotal       *prometheus.CounterVec
	archiveActiveWorkers       prometheus.Gauge
	archiveQueueDepth          prometheus.Gauge
	archiveWaitDurationSeconds prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		archiveFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_fetches_total",
				Help: "Total number of fetches performed, labeled by site and status class.",
			},
			[]string{"site", "status"},
		)

		archiveFetchedBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_fetched_bytes_total",
				Help: "Total number of body bytes hashed, labeled by site.",
			},
			[]string{"site"},
		)

		archiveEnqueuesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_enqueues_total",
				Help: "Total enqueue calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		archiveActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archive_active_workers",
				Help: "Number of workers currently fetching or committing.",
			},
		)

		archiveQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "archive_queue_depth",
				Help: "Number of URLs waiting to be crawled.",
			},
		)

		archiveWaitDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archive_wait_duration_seconds",
				Help:    "Histogram of enqueue-and-wait blocking times.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// StatusClass collapses a record status into a metric label: "2xx".."5xx"
// for HTTP codes, "error" for the negative fetch-failure codes.
func StatusClass(status int) string {
	if status < 0 {
		return "error"
	}
	if status >= 100 && status < 600 {
		return fmt.Sprintf("%dxx", status/100)
	}
	return "unknown"
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch.
func ObserveFetch(site string, status int, bytesFetched uint64) {
	sanitizedSite := SanitizeSite(site)
	archiveFetchesTotal.WithLabelValues(sanitizedSite, StatusClass(status)).Inc()
	if bytesFetched > 0 && bytesFetched < 1<<62 {
		archiveFetchedBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveEnqueue increments the enqueue counter for the given outcome
// ("queued", "duplicate", "fresh", "rejected", "conflict").
func ObserveEnqueue(outcome string) {
	archiveEnqueuesTotal.WithLabelValues(outcome).Inc()
}

// ObserveWait records how long an enqueue-and-wait call blocked.
func ObserveWait(duration time.Duration) {
	archiveWaitDurationSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	archiveActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	archiveActiveWorkers.Dec()
}

// SetQueueDepth updates the pending-work gauge.
func SetQueueDepth(n int) {
	archiveQueueDepth.Set(float64(n))
}
