package metrics

import "github.com/prometheus/client_golang/prometheus"

// Enrichment pipeline metrics.
var (
	EnrichRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagedex",
			Name:      "enrich_records_total",
			Help:      "Records processed by the enrichment pipeline, by outcome",
		},
		[]string{"pipeline", "outcome"},
	)

	EnrichPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagedex",
			Name:      "enrich_pages_total",
			Help:      "Pages completed by the enrichment pipeline",
		},
		[]string{"pipeline"},
	)

	EnrichRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imagedex",
			Name:      "enrich_run_duration_seconds",
			Help:      "Enrichment run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"pipeline", "status"},
	)

	EnrichStoreRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imagedex",
			Name:      "enrich_store_retries_total",
			Help:      "Transient store failures retried by the pipeline",
		},
		[]string{"pipeline", "op"},
	)
)

var enrichMetricsRegistered bool

// RegisterEnrichMetrics registers pipeline metrics. Must be called once from main.
func RegisterEnrichMetrics() {
	if enrichMetricsRegistered {
		return
	}
	prometheus.MustRegister(EnrichRecordsTotal)
	prometheus.MustRegister(EnrichPagesTotal)
	prometheus.MustRegister(EnrichRunDuration)
	prometheus.MustRegister(EnrichStoreRetriesTotal)
	enrichMetricsRegistered = true
}

// Register registers every metric family of the service.
func Register() {
	RegisterProviderMetrics()
	RegisterEnrichMetrics()
	RegisterHTTPMetrics()
}
