package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CrawlPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrag",
			Name:      "crawl_pages_total",
			Help:      "Pages fetched by the crawler, by result",
		},
		[]string{"result"}, // "ok" / "failed"
	)

	CrawlDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "webrag",
			Name:      "crawl_duration_seconds",
			Help:      "Duration of a whole site crawl in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrag",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding batch requests",
		},
		[]string{"provider", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "webrag",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding batch request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "webrag",
			Name:      "sessions_active",
			Help:      "Sessions currently registered in memory",
		},
	)

	IndexCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "webrag",
			Name:      "index_cache_total",
			Help:      "Vector index cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

func init() {
	prometheus.MustRegister(
		CrawlPagesTotal,
		CrawlDuration,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		SessionsActive,
		IndexCacheTotal,
	)
}
