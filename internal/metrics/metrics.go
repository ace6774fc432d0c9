package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seriesmatch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	LookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "lookups_total",
		Help:      "Total title lookups by the source that answered them.",
	}, []string{"source"})

	LocalSearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seriesmatch",
		Name:      "local_search_duration_seconds",
		Help:      "Local catalog search duration in seconds.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	LocalCandidates = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seriesmatch",
		Name:      "local_search_candidates",
		Help:      "Number of candidate records scored per local search.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	ArtifactBuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "artifact_builds_total",
		Help:      "Total rebuilds of merge map, canonical set and index.",
	})

	ArtifactBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seriesmatch",
		Name:      "artifact_build_duration_seconds",
		Help:      "Duration of derived artifact rebuilds in seconds.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	CatalogRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "seriesmatch",
		Name:      "catalog_records",
		Help:      "Records in the active snapshot by kind.",
	}, []string{"kind"})

	RemoteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "remote_requests_total",
		Help:      "Total remote lookup requests by operation and result status.",
	}, []string{"operation", "status"})

	RemoteRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "seriesmatch",
		Name:      "remote_request_duration_seconds",
		Help:      "Remote lookup request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"operation"})

	RemoteLimiterWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "seriesmatch",
		Name:      "remote_limiter_wait_seconds",
		Help:      "Time spent waiting on the global remote rate limiter.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "cache_hits_total",
		Help:      "Total number of response cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "cache_misses_total",
		Help:      "Total number of response cache misses.",
	})

	BatchItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "batch_items_total",
		Help:      "Total batch items processed by outcome.",
	}, []string{"outcome"})

	EnrichmentPagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seriesmatch",
		Name:      "enrichment_pages_total",
		Help:      "Total enrichment pages fetched by collection and status.",
	}, []string{"collection", "status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LookupsTotal,
		LocalSearchDuration,
		LocalCandidates,
		ArtifactBuildsTotal,
		ArtifactBuildDuration,
		CatalogRecords,
		RemoteRequestsTotal,
		RemoteRequestDuration,
		RemoteLimiterWait,
		CacheHitsTotal,
		CacheMissesTotal,
		BatchItemsTotal,
		EnrichmentPagesTotal,
	)
}
