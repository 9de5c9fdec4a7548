// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dipRequestsTotal          *prometheus.CounterVec
	dipRequestDurationSeconds *prometheus.HistogramVec
	dipRetriesTotal           *prometheus.CounterVec
	challengeSolvesTotal      *prometheus.CounterVec
	pagesWrittenTotal         *prometheus.CounterVec
	recordsUpsertedTotal      *prometheus.CounterVec
	recordsSkippedTotal       *prometheus.CounterVec
	embeddingsBuiltTotal      prometheus.Counter

	once sync.Once
)

// Init registers the collectors. Safe to call from every subsystem that
// records metrics; only the first call registers.
func Init() {
	once.Do(func() {
		dipRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlify_dip_requests_total",
				Help: "Total DIP API requests, labeled by endpoint and status.",
			},
			[]string{"endpoint", "status"},
		)

		dipRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawlify_dip_request_duration_seconds",
				Help:    "Histogram of DIP request latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		dipRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlify_dip_retries_total",
				Help: "Total backoff retries issued by the DIP client, labeled by endpoint.",
			},
			[]string{"endpoint"},
		)

		challengeSolvesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlify_challenge_solves_total",
				Help: "Total Enodia challenge solve attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pagesWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlify_pages_written_total",
				Help: "Raw page artifacts durably written, labeled by stream.",
			},
			[]string{"stream"},
		)

		recordsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlify_records_upserted_total",
				Help: "Canonical records upserted, labeled by entity.",
			},
			[]string{"entity"},
		)

		recordsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlify_records_skipped_total",
				Help: "Raw records skipped during normalization, labeled by reason.",
			},
			[]string{"reason"},
		)

		embeddingsBuiltTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawlify_embeddings_built_total",
				Help: "Embedding vectors computed and stored.",
			},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one DIP API request.
func ObserveRequest(endpoint, status string, duration time.Duration) {
	dipRequestsTotal.WithLabelValues(endpoint, status).Inc()
	dipRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRetry records one backoff retry.
func ObserveRetry(endpoint string) {
	dipRetriesTotal.WithLabelValues(endpoint).Inc()
}

// ObserveSolve records one challenge solve attempt outcome ("success",
// "timeout", "rejected").
func ObserveSolve(outcome string) {
	challengeSolvesTotal.WithLabelValues(outcome).Inc()
}

// ObservePageWritten records one committed raw page artifact.
func ObservePageWritten(stream string) {
	pagesWrittenTotal.WithLabelValues(stream).Inc()
}

// ObserveUpsert records one canonical entity upsert.
func ObserveUpsert(entity string) {
	recordsUpsertedTotal.WithLabelValues(entity).Inc()
}

// ObserveSkip records one skipped raw record.
func ObserveSkip(reason string) {
	recordsSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveEmbedding records one stored embedding.
func ObserveEmbedding() {
	embeddingsBuiltTotal.Inc()
}
