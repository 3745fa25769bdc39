// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
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

// Fetch outcomes recorded by ObserveFetch.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

var (
	fetchRequestsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchInFlight              prometheus.Gauge
	fetchPendingRequests       prometheus.Gauge
	cataloguePagesTotal        *prometheus.CounterVec
	catalogueCreaturesTotal    *prometheus.CounterVec
	extractionErrorsTotal      *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_requests_total",
				Help: "Total number of fetch jobs served by the worker pool, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetch_duration_seconds",
				Help:    "Histogram of fetch client latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		fetchInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetch_in_flight",
				Help: "Number of fetch client calls currently in flight.",
			},
		)

		fetchPendingRequests = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetch_pending_requests",
				Help: "Number of fetch jobs waiting in the request queue.",
			},
		)

		cataloguePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogue_pages_total",
				Help: "Total number of listing pages processed, labeled by status.",
			},
			[]string{"status"},
		)

		catalogueCreaturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalogue_creatures_total",
				Help: "Total number of creature detail pages processed, labeled by status.",
			},
			[]string{"status"},
		)

		extractionErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extraction_errors_total",
				Help: "Total number of markup extraction failures, labeled by stage.",
			},
			[]string{"stage"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-site rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch job.
func ObserveFetch(site, outcome string, bytesFetched int, duration time.Duration) {
	sanitizedSite := SanitizeSite(site)
	fetchRequestsTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
	if duration > 0 {
		fetchDurationSeconds.WithLabelValues(sanitizedSite).Observe(duration.Seconds())
	}
}

// IncInFlight increments the in-flight fetch gauge.
func IncInFlight() {
	fetchInFlight.Inc()
}

// DecInFlight decrements the in-flight fetch gauge.
func DecInFlight() {
	fetchInFlight.Dec()
}

// SetPendingRequests records the current request queue backlog.
func SetPendingRequests(n int) {
	fetchPendingRequests.Set(float64(n))
}

// ObservePage increments the listing page counter for the given status.
func ObservePage(status string) {
	cataloguePagesTotal.WithLabelValues(status).Inc()
}

// ObserveCreature increments the creature counter for the given status.
func ObserveCreature(status string) {
	catalogueCreaturesTotal.WithLabelValues(status).Inc()
}

// ObserveExtractionError increments the extraction failure counter.
func ObserveExtractionError(stage string) {
	extractionErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveRateLimitDelay records time spent blocked on the rate limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(delay.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
