// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lumina"

var (
	// StorageOperationsTotal tracks storage facade calls.
	// Labels:
	//   - backend: minio, s3, oss, cos
	//   - operation: download, upload, presign_put, ...
	//   - status: success, not_found, error
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of object storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	// StorageOperationDuration observes storage call latency.
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of object storage operations",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	// PhotosProcessedTotal tracks finished processing jobs.
	// Labels:
	//   - result: ready, failed, retried
	PhotosProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_processed_total",
			Help:      "Total number of photo processing jobs by outcome",
		},
		[]string{"result"},
	)

	// PipelineStageDuration observes the time spent in each pipeline stage.
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of image pipeline stages",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	// WatermarksTotal tracks watermark overlay construction.
	// Labels:
	//   - type: text, logo
	//   - result: applied, skipped
	WatermarksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watermarks_total",
			Help:      "Total number of watermark overlays by type and result",
		},
		[]string{"type", "result"},
	)

	// CacheOperationsTotal tracks cache operations (get, set).
	// Labels:
	//   - operation: get, set
	//   - status: hit, miss, success, error
	//   - cache_type: redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select, insert, update
	//   - table: photos
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks coalesced logo fetches.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal tracks API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Storage operation status constants.
const (
	StorageStatusSuccess  = "success"
	StorageStatusNotFound = "not_found"
	StorageStatusError    = "error"
)

// Photo processing result constants.
const (
	PhotoResultReady   = "ready"
	PhotoResultFailed  = "failed"
	PhotoResultRetried = "retried"
)

// Pipeline stage constants.
const (
	StageDecode    = "decode"
	StageRotate    = "rotate"
	StagePreset    = "preset"
	StageThumbnail = "thumbnail"
	StagePreview   = "preview"
	StageWatermark = "watermark"
	StageEncode    = "encode"
)

// Watermark result constants.
const (
	WatermarkApplied = "applied"
	WatermarkSkipped = "skipped"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet = "get"
	CacheOpSet = "set"
)

// Cache type constants.
const (
	CacheTypeRedis = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Table name constants.
const (
	TablePhotos = "photos"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
