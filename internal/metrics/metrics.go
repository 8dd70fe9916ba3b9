package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmtiles_api_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmtiles_api_request_duration_ms",
		Help:    "Request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	ArtifactBytesServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmtiles_api_artifact_bytes_total",
		Help: "Artifact bytes written to clients by response kind (full/partial)",
	}, []string{"kind"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmtiles_api_cache_hits_total",
		Help: "Response cache hits by backend",
	}, []string{"backend"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmtiles_api_cache_misses_total",
		Help: "Response cache misses by backend",
	}, []string{"backend"})

	ExtractionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pmtiles_extractions_total",
		Help: "Extraction jobs by outcome (skipped/succeeded/failed)",
	}, []string{"outcome"})
	ExtractionDurationSec = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pmtiles_extraction_duration_seconds",
		Help:    "Wall time of a single external extraction invocation",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
	})
	ExtractionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pmtiles_extractions_in_flight",
		Help: "External extraction invocations currently running",
	})
	ReconcileCountries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pmtiles_reconcile_countries",
		Help: "Countries by state after the last reconciliation pass",
	}, []string{"state"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(ArtifactBytesServed)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(ExtractionsTotal)
	prometheus.MustRegister(ExtractionDurationSec)
	prometheus.MustRegister(ExtractionsInFlight)
	prometheus.MustRegister(ReconcileCountries)
}

// 文档注释：返回 Prometheus 指标监听器，在主入口挂载到 /metrics
func Handler() http.Handler { return promhttp.Handler() }
