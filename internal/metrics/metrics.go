package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_checks_total",
			Help: "Total number of site probes by resulting status",
		},
		[]string{"status"},
	)

	CheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitewatch_check_duration_seconds",
			Help:    "Histogram of probe duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_sweeps_total",
			Help: "Total number of sweeps by result (ok, canceled, error, panic)",
		},
		[]string{"result"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitewatch_sweep_duration_seconds",
			Help:    "Histogram of full sweep duration",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	Sites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sitewatch_sites",
			Help: "Number of monitored sites seen by the last sweep",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitewatch_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"path", "method", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sitewatch_http_request_duration_seconds",
			Help:    "Histogram of HTTP API response duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			ChecksTotal, CheckDuration,
			SweepsTotal, SweepDuration, Sites,
			HTTPRequests, HTTPDuration,
		)
	})
}
