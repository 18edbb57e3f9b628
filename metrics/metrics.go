package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_uploads_received_total",
			Help: "Total number of log uploads received",
		},
		[]string{"format"},
	)

	EventsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_events_parsed_total",
			Help: "Total number of log events parsed",
		},
		[]string{"format"},
	)

	FindingsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_findings_detected_total",
			Help: "Total number of findings detected",
		},
		[]string{"kind"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warptrace_analysis_duration_seconds",
			Help:    "Time taken to analyze an upload end to end",
			Buckets: prometheus.DefBuckets,
		},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warptrace_detection_duration_seconds",
			Help:    "Time taken by the detection passes over one upload",
			Buckets: prometheus.DefBuckets,
		},
	)

	SummaryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_summary_requests_total",
			Help: "Total number of summary generations",
		},
		[]string{"outcome"},
	)

	AnalysisFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warptrace_analysis_failures_total",
			Help: "Total number of uploads whose analysis pipeline failed",
		},
	)

	ArchiveInsertFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "warptrace_archive_insert_failures_total",
			Help: "Total number of archive insertion failures",
		},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_cache_errors_total",
			Help: "Total number of cache errors",
		},
		[]string{"cache", "operation"},
	)

	DBPoolOpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warptrace_db_pool_open_connections",
			Help: "Open connections per database pool",
		},
		[]string{"pool"},
	)

	DBPoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warptrace_db_pool_in_use_connections",
			Help: "Connections currently in use per database pool",
		},
		[]string{"pool"},
	)

	DBPoolIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warptrace_db_pool_idle_connections",
			Help: "Idle connections per database pool",
		},
		[]string{"pool"},
	)

	DBPoolWaitCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_db_pool_waits_total",
			Help: "Total number of waits for a database connection",
		},
		[]string{"pool"},
	)

	DBPoolWaitSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warptrace_db_pool_wait_seconds_total",
			Help: "Cumulative time spent waiting for a database connection",
		},
		[]string{"pool"},
	)

	WorkerPoolActiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warptrace_worker_pool_active_workers",
			Help: "Number of active workers per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "warptrace_worker_pool_queue_size",
			Help: "Number of queued tasks per pool",
		},
		[]string{"pool"},
	)

	WorkerPoolTasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_worker_pool_tasks_processed_total",
			Help: "Total number of tasks processed per pool",
		},
		[]string{"pool"},
	)

	RecognizerMatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warptrace_recognizer_match_duration_seconds",
			Help:    "Time taken evaluating custom recognizer patterns",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"recognizer"},
	)

	RecognizerTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_recognizer_timeouts_total",
			Help: "Total number of custom recognizer pattern timeouts",
		},
		[]string{"recognizer"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warptrace_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "warptrace_websocket_clients",
			Help: "Number of connected WebSocket status stream clients",
		},
	)
)
