// Package metrics provides Prometheus metrics for the PhysioPulse analysis service.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exposed by the service.
type Manager struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer

	// Pipeline
	analyses        *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	processingTime  *prometheus.HistogramVec
	framesExtracted prometheus.Counter
	framesScored    prometheus.Counter
	framesDropped   prometheus.Counter
	jointScores     *prometheus.HistogramVec
	artifactsClean  prometheus.Counter

	// Jobs
	queueSize       prometheus.Gauge
	queueCapacity   prometheus.Gauge
	workerCount     prometheus.Gauge
	workerBusy      prometheus.Gauge
	jobsDuplicate   prometheus.Counter
	jobsRejected    prometheus.Counter
	storeOperations *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

// exported is what the package level recorders write to and what
// GetRegistry serves.
type exported struct {
	manager  *Manager
	registry *prometheus.Registry
}

var current atomic.Pointer[exported] //nolint:gochecknoglobals // process wide metrics

func init() { //nolint:gochecknoinits // metrics are usable before Configure
	Configure()
}

// Configure replaces the process wide collectors with a fresh set on a new
// registry built from opts. Counts recorded so far are dropped, so call it
// once at startup before serving traffic.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	m := NewManager(append(append([]Option{}, opts...), WithPrometheusRegistry(reg))...)
	current.Store(&exported{manager: m, registry: reg})
}

func manager() *Manager {
	return current.Load().manager
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "physiopulse",
		subsystem: "analysis",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.analyses = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Pipeline runs by exercise type and final status",
	}, []string{"exercise", "status"})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Duration of each pipeline stage",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	m.processingTime = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "processing_time_seconds",
		Help:      "Wall-clock time of a whole pipeline run",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"status"})

	m.framesExtracted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_extracted_total",
		Help:      "Landmark frames returned by the pose engine",
	})

	m.framesScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_scored_total",
		Help:      "Frames that produced at least one joint score",
	})

	m.framesDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_unscored_total",
		Help:      "Frames skipped because no joint could be scored",
	})

	m.jointScores = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "joint_score",
		Help:      "Distribution of joint tier scores",
		Buckets:   []float64{25, 50, 75, 100},
	}, []string{"exercise", "joint"})

	m.artifactsClean = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "artifacts_cleaned_total",
		Help:      "Partial artifact files removed after failed runs",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Jobs waiting in the analysis queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum analysis queue capacity",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Configured analysis workers",
	})

	m.workerBusy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_busy",
		Help:      "Workers currently running a pipeline",
	})

	m.jobsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "jobs_duplicate_total",
		Help:      "Submissions answered from the idempotency cache",
	})

	m.jobsRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "jobs_rejected_total",
		Help:      "Submissions rejected because the queue was full or closed",
	})

	m.storeOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_operations_total",
		Help:      "Analysis store operations by backend, operation and outcome",
	}, []string{"backend", "op", "outcome"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_total",
		Help:      "Errors by component and kind",
	}, []string{"component", "kind"})
}

// RecordRun counts a finished pipeline run and its wall-clock duration.
func RecordRun(exercise, status string, seconds float64) {
	manager().analyses.WithLabelValues(exercise, status).Inc()
	manager().processingTime.WithLabelValues(status).Observe(seconds)
}

// RecordStageDuration observes the duration of one pipeline stage.
func RecordStageDuration(stage string, seconds float64) {
	manager().stageDuration.WithLabelValues(stage).Observe(seconds)
}

// AddFramesExtracted adds to the extracted frame counter.
func AddFramesExtracted(n int) {
	manager().framesExtracted.Add(float64(n))
}

// AddFramesScored adds to the scored and unscored frame counters.
func AddFramesScored(scored, unscored int) {
	manager().framesScored.Add(float64(scored))
	manager().framesDropped.Add(float64(unscored))
}

// ObserveJointScore records one joint tier score.
func ObserveJointScore(exercise, joint string, score int) {
	manager().jointScores.WithLabelValues(exercise, joint).Observe(float64(score))
}

// AddArtifactsCleaned counts removed partial artifacts.
func AddArtifactsCleaned(n int) {
	manager().artifactsClean.Add(float64(n))
}

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	manager().queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	manager().queueCapacity.Set(float64(capacity))
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	manager().workerCount.Set(float64(count))
}

// WorkerBusy adjusts the busy worker gauge by delta.
func WorkerBusy(delta int) {
	manager().workerBusy.Add(float64(delta))
}

// RecordJobDuplicate counts an idempotent resubmission.
func RecordJobDuplicate() {
	manager().jobsDuplicate.Inc()
}

// RecordJobRejected counts a submission refused by the queue.
func RecordJobRejected() {
	manager().jobsRejected.Inc()
}

// RecordStoreOperation counts a store call.
func RecordStoreOperation(backend, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	manager().storeOperations.WithLabelValues(backend, op, outcome).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(route, method, statusCode string, seconds float64) {
	manager().httpRequests.WithLabelValues(route, method, statusCode).Inc()
	manager().httpRequestDuration.WithLabelValues(route, method, statusCode).Observe(seconds)
}

// RecordError counts an error attributed to a component.
func RecordError(component, kind string) {
	manager().errorsByComponent.WithLabelValues(component, kind).Inc()
}

// GetRegistry returns the registry holding the current collectors.
func GetRegistry() *prometheus.Registry {
	return current.Load().registry
}
