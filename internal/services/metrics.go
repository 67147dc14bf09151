package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Clustering metrics
	ClusteringRuns        *prometheus.CounterVec
	ClusteringRunDuration prometheus.Histogram
	ClusterSilhouette     *prometheus.GaugeVec
	ClusterCount          *prometheus.GaugeVec

	// Embedding metrics
	EmbeddingRequests prometheus.Counter
	EmbeddingErrors   prometheus.Counter

	// Similarity search metrics
	SimilaritySearches      prometheus.Counter
	SimilaritySearchLatency prometheus.Histogram
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	metrics := &Metrics{
		// Clustering runs by outcome: "completed", "skipped", "failed"
		ClusteringRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cohort_clustering_runs_total",
			Help: "Total number of clustering runs by outcome",
		}, []string{"outcome"}),

		ClusteringRunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cohort_clustering_run_duration_seconds",
			Help:    "Clustering run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600}, // batch runs can take minutes
		}),

		ClusterSilhouette: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cohort_cluster_silhouette_score",
			Help: "Silhouette score of the latest clustering run per organization",
		}, []string{"org_id"}),

		ClusterCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cohort_cluster_count",
			Help: "Cluster count of the latest clustering run per organization",
		}, []string{"org_id"}),

		EmbeddingRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cohort_embedding_requests_total",
			Help: "Total number of embedding service calls",
		}),

		EmbeddingErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cohort_embedding_errors_total",
			Help: "Total number of failed embedding service calls",
		}),

		SimilaritySearches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cohort_similarity_searches_total",
			Help: "Total number of similarity searches served",
		}),

		SimilaritySearchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "cohort_similarity_search_duration_seconds",
			Help:    "Similarity search latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}

// RecordClusteringRun records a clustering run outcome and duration
func (m *Metrics) RecordClusteringRun(outcome string, seconds float64) {
	m.ClusteringRuns.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.ClusteringRunDuration.Observe(seconds)
	}
}

// RecordClusterResult records per-org gauges for the latest run
func (m *Metrics) RecordClusterResult(orgID string, silhouette float64, clusterCount int) {
	m.ClusterSilhouette.WithLabelValues(orgID).Set(silhouette)
	m.ClusterCount.WithLabelValues(orgID).Set(float64(clusterCount))
}

// RecordEmbeddingRequest records an embedding call and whether it failed
func (m *Metrics) RecordEmbeddingRequest(failed bool) {
	m.EmbeddingRequests.Inc()
	if failed {
		m.EmbeddingErrors.Inc()
	}
}

// RecordSimilaritySearch records a similarity search and its latency
func (m *Metrics) RecordSimilaritySearch(seconds float64) {
	m.SimilaritySearches.Inc()
	m.SimilaritySearchLatency.Observe(seconds)
}
