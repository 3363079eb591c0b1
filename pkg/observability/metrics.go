package observability

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	VectorsInserted prometheus.Counter
	VectorsDeleted  prometheus.Counter
	VectorsUpdated  prometheus.Counter
	VectorsSearched prometheus.Counter

	IndexSize        *prometheus.GaugeVec
	IndexMemoryBytes *prometheus.GaugeVec
	IndexMaxLayer    *prometheus.GaugeVec
	TombstoneRatio   *prometheus.GaugeVec

	SearchLatency    prometheus.Histogram
	SearchRecall     prometheus.Histogram
	SearchResultSize prometheus.Histogram

	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheUsedSize prometheus.Gauge

	BatchInsertTotal    prometheus.Counter
	BatchInsertDuration prometheus.Histogram
	BatchDeleteTotal    prometheus.Counter
	BatchDeleteDuration prometheus.Histogram

	CollectionsTotal prometheus.Gauge

	GoroutinesCount prometheus.Gauge
	MemoryUsage     prometheus.Gauge

	cacheHits   int64
	cacheMisses int64
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectorizer_requests_total",
				Help: "Total number of requests by method and status",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vectorizer_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vectorizer_request_errors_total",
				Help: "Total number of request errors by method and error type",
			},
			[]string{"method", "error_type"},
		),

		VectorsInserted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_vectors_inserted_total",
				Help: "Total number of vectors inserted",
			},
		),
		VectorsDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_vectors_deleted_total",
				Help: "Total number of vectors deleted",
			},
		),
		VectorsUpdated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_vectors_updated_total",
				Help: "Total number of vectors updated",
			},
		),
		VectorsSearched: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_vectors_searched_total",
				Help: "Total number of search operations",
			},
		),

		IndexSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vectorizer_index_size",
				Help: "Number of live vectors in the index by collection",
			},
			[]string{"collection"},
		),
		IndexMemoryBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vectorizer_index_memory_bytes",
				Help: "Memory usage of the index in bytes by collection",
			},
			[]string{"collection"},
		),
		IndexMaxLayer: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vectorizer_index_max_layer",
				Help: "Maximum layer in the HNSW graph by collection",
			},
			[]string{"collection"},
		),
		TombstoneRatio: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vectorizer_tombstone_ratio",
				Help: "Fraction of tombstoned nodes in the index by collection",
			},
			[]string{"collection"},
		),

		SearchLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectorizer_search_latency_seconds",
				Help:    "Search latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		SearchRecall: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectorizer_search_recall",
				Help:    "Search recall (0-1)",
				Buckets: []float64{.8, .85, .9, .92, .94, .95, .96, .97, .98, .99, 1.0},
			},
		),
		SearchResultSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectorizer_search_result_size",
				Help:    "Number of results returned by search",
				Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
			},
		),

		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_cache_hits_total",
				Help: "Total number of query cache hits",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_cache_misses_total",
				Help: "Total number of query cache misses",
			},
		),
		CacheUsedSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectorizer_cache_used_bytes",
				Help: "Current bytes occupied by cached entries",
			},
		),

		BatchInsertTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_batch_insert_total",
				Help: "Total number of batch insert operations",
			},
		),
		BatchInsertDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectorizer_batch_insert_duration_seconds",
				Help:    "Batch insert duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		BatchDeleteTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "vectorizer_batch_delete_total",
				Help: "Total number of batch delete operations",
			},
		),
		BatchDeleteDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "vectorizer_batch_delete_duration_seconds",
				Help:    "Batch delete duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		CollectionsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectorizer_collections_total",
				Help: "Total number of registered collections",
			},
		),

		GoroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectorizer_goroutines",
				Help: "Current number of goroutines",
			},
		),
		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "vectorizer_memory_bytes",
				Help: "Process memory usage in bytes",
			},
		),
	}

	return m
}

// RecordRequest records a request with duration and status.
func (m *Metrics) RecordRequest(method, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordError records an error.
func (m *Metrics) RecordError(method, errorType string) {
	m.RequestErrors.WithLabelValues(method, errorType).Inc()
}

// RecordInsert records a vector insertion.
func (m *Metrics) RecordInsert(collection string, count int) {
	m.VectorsInserted.Add(float64(count))
}

// RecordDelete records a vector deletion.
func (m *Metrics) RecordDelete(collection string, count int) {
	m.VectorsDeleted.Add(float64(count))
}

// RecordUpdate records a vector update.
func (m *Metrics) RecordUpdate(collection string, count int) {
	m.VectorsUpdated.Add(float64(count))
}

// RecordSearch records a search operation.
func (m *Metrics) RecordSearch(duration time.Duration, resultSize int) {
	m.VectorsSearched.Inc()
	m.SearchLatency.Observe(duration.Seconds())
	m.SearchResultSize.Observe(float64(resultSize))
}

// RecordCacheHit records a cache hit, keeping its own atomic tally
// alongside the Prometheus counter so GetCacheHitRate can be answered
// without scraping the registry.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
	atomic.AddInt64(&m.cacheHits, 1)
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
	atomic.AddInt64(&m.cacheMisses, 1)
}

// UpdateIndexSize updates the index size metric for collection.
func (m *Metrics) UpdateIndexSize(collection string, size int) {
	m.IndexSize.WithLabelValues(collection).Set(float64(size))
}

// UpdateIndexMemory updates the index memory metric for collection.
func (m *Metrics) UpdateIndexMemory(collection string, bytes int64) {
	m.IndexMemoryBytes.WithLabelValues(collection).Set(float64(bytes))
}

// UpdateIndexMaxLayer updates the max layer metric for collection.
func (m *Metrics) UpdateIndexMaxLayer(collection string, maxLayer int) {
	m.IndexMaxLayer.WithLabelValues(collection).Set(float64(maxLayer))
}

// UpdateTombstoneRatio updates the tombstone ratio metric for collection.
func (m *Metrics) UpdateTombstoneRatio(collection string, ratio float64) {
	m.TombstoneRatio.WithLabelValues(collection).Set(ratio)
}

// RecordBatchInsert records a batch insert operation.
func (m *Metrics) RecordBatchInsert(duration time.Duration, count int) {
	m.BatchInsertTotal.Inc()
	m.BatchInsertDuration.Observe(duration.Seconds())
	m.VectorsInserted.Add(float64(count))
}

// RecordBatchDelete records a batch delete operation.
func (m *Metrics) RecordBatchDelete(duration time.Duration, count int) {
	m.BatchDeleteTotal.Inc()
	m.BatchDeleteDuration.Observe(duration.Seconds())
	m.VectorsDeleted.Add(float64(count))
}

// UpdateCollectionCount updates the total collection count.
func (m *Metrics) UpdateCollectionCount(count int) {
	m.CollectionsTotal.Set(float64(count))
}

// UpdateGoroutineCount updates goroutine count.
func (m *Metrics) UpdateGoroutineCount(count int) {
	m.GoroutinesCount.Set(float64(count))
}

// UpdateMemoryUsage updates memory usage.
func (m *Metrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateCacheUsedBytes updates the cache occupancy gauge.
func (m *Metrics) UpdateCacheUsedBytes(bytes int64) {
	m.CacheUsedSize.Set(float64(bytes))
}

// GetCacheHitRate returns hits / (hits + misses) across this process's
// lifetime, or 0 if neither has occurred yet.
func (m *Metrics) GetCacheHitRate() float64 {
	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
