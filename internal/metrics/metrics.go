package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsClaimed counts jobs taken off the queue by the worker.
	JobsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_optimizer_jobs_claimed_total",
		Help: "Total number of jobs claimed for processing",
	})

	// JobsCompleted counts jobs by final status.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_optimizer_jobs_completed_total",
		Help: "Total number of jobs finished, by final status",
	}, []string{"status"})

	// FilesProcessed counts per-file outcomes.
	FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_optimizer_files_processed_total",
		Help: "Total number of files processed, by outcome",
	}, []string{"outcome"})

	// VariantsRendered counts rendered outputs by format.
	VariantsRendered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_optimizer_variants_rendered_total",
		Help: "Total number of output variants rendered, by format",
	}, []string{"format"})

	// JobDuration observes wall time per job.
	JobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_optimizer_job_duration_seconds",
		Help:    "Time spent processing one job",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// FileDuration observes wall time per file.
	FileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "image_optimizer_file_duration_seconds",
		Help:    "Time spent processing one file",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// BytesSaved accumulates the difference between original and
	// output sizes across completed files.
	BytesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_optimizer_bytes_saved_total",
		Help: "Total bytes saved by optimization",
	})

	// QueueDepth tracks jobs per status, refreshed by the collector.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "image_optimizer_queue_depth",
		Help: "Number of jobs per status",
	}, []string{"status"})

	// StorageBytes tracks blob store usage per prefix.
	StorageBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "image_optimizer_storage_bytes",
		Help: "Bytes stored, by blob prefix",
	}, []string{"prefix"})

	// WorkerConcurrency reflects the clamped concurrency in effect.
	WorkerConcurrency = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "image_optimizer_worker_concurrency",
		Help: "Effective resize pool size",
	})

	// HTTPRequestsTotal counts API requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "image_optimizer_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration observes API request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "image_optimizer_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// HTTPRequestsInFlight tracks requests currently being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "image_optimizer_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served",
	})

	// MemoryUsageRatio is heap usage as a fraction of the memory limit.
	MemoryUsageRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "image_optimizer_memory_usage_ratio",
		Help: "Heap usage as a fraction of the configured memory limit",
	})

	// MemoryPaused is 1 while processing is paused for memory pressure.
	MemoryPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "image_optimizer_memory_paused",
		Help: "Whether processing is paused due to memory pressure",
	})

	// MemoryGCPauses counts forced garbage collections under pressure.
	MemoryGCPauses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "image_optimizer_memory_gc_pauses_total",
		Help: "Total forced garbage collections triggered by memory pressure",
	})
)
