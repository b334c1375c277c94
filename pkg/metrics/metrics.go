// Package metrics exposes prometheus counters for requests, projections and
// upstream calls.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "acep_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	httpRequests *prometheus.CounterVec

	projectionDays    *prometheus.CounterVec
	projectionLatency prometheus.Histogram

	weatherFetches *prometheus.CounterVec
	chatRelays     *prometheus.CounterVec
	exports        *prometheus.CounterVec
)

// Init registers all metrics with the default registry. It is safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		)
		projectionDays = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "projection_days_total",
				Help: "Total projected days by status",
			},
			[]string{"status"},
		)
		projectionLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "projection_latency_seconds",
				Help:    "Projection latency in seconds including storage reads",
				Buckets: prometheus.DefBuckets,
			},
		)
		weatherFetches = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "weather_fetch_total",
				Help: "Total weather API fetches by result",
			},
			[]string{"result"},
		)
		chatRelays = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "chat_relay_total",
				Help: "Total assistant webhook relays by result",
			},
			[]string{"result"},
		)
		exports = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "projection_export_total",
				Help: "Total projection exports by format and result",
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			httpRequests,
			projectionDays,
			projectionLatency,
			weatherFetches,
			chatRelays,
			exports,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func result(ok bool) string {
	if ok {
		return resultSuccess
	}
	return resultError
}

// ObserveRequest counts a served request.
func ObserveRequest(route string, code int) {
	if route == "" {
		route = "unknown"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
}

// ObserveProjection records a projection run and the status of every day it
// produced.
func ObserveProjection(statuses []string, duration time.Duration) {
	if projectionLatency != nil {
		projectionLatency.Observe(duration.Seconds())
	}
	if projectionDays == nil {
		return
	}
	for _, s := range statuses {
		projectionDays.WithLabelValues(s).Inc()
	}
}

// WeatherFetch counts a weather API call.
func WeatherFetch(ok bool) {
	if weatherFetches != nil {
		weatherFetches.WithLabelValues(result(ok)).Inc()
	}
}

// ChatRelay counts an assistant webhook call.
func ChatRelay(ok bool) {
	if chatRelays != nil {
		chatRelays.WithLabelValues(result(ok)).Inc()
	}
}

// Export counts a projection export.
func Export(format string, ok bool) {
	if exports != nil {
		exports.WithLabelValues(format, result(ok)).Inc()
	}
}
