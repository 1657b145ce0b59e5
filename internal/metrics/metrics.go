// Package metrics exposes Prometheus metrics for document processing and search.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundreports_documents_processed_total",
			Help: "Documents processed, by final status",
		},
		[]string{"status"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fundreports_document_processing_seconds",
			Help:    "Wall time spent processing one document",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	RecordsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundreports_records_persisted_total",
			Help: "Financial records written, by table type",
		},
		[]string{"table_type"},
	)

	RowsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundreports_rows_rejected_total",
			Help: "Parsed rows rejected by validation, by table type",
		},
		[]string{"table_type"},
	)

	ChunksEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundreports_chunks_embedded_total",
			Help: "Text chunks embedded and stored",
		},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundreports_search_requests_total",
			Help: "Search requests, by backend that served them",
		},
		[]string{"backend"},
	)

	SearchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fundreports_search_fallbacks_total",
			Help: "Approximate searches that fell back to the exact store",
		},
	)

	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fundreports_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	IndexVectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fundreports_approx_index_vectors",
			Help: "Vectors held by the approximate index after the last mutation",
		},
	)
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fundreports_http_requests_total",
			Help: "HTTP requests, by route pattern and status code",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fundreports_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
