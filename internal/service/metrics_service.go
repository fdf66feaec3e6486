package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/learning-center-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry              *prometheus.Registry
	handler               http.Handler
	requestDuration       *prometheus.HistogramVec
	requestTotal          *prometheus.CounterVec
	cacheLatency          prometheus.Observer
	cacheWrite            prometheus.Observer
	cacheHitRatio         prometheus.Gauge
	cacheHits             prometheus.Counter
	cacheMisses           prometheus.Counter
	enrollmentTransitions *prometheus.CounterVec
	lessonCompletions     *prometheus.CounterVec
	attemptsGraded        *prometheus.CounterVec
	outboxRelayed         *prometheus.CounterVec
	attemptsPurged        prometheus.Counter
	purgeFailures         prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	gradedCount          uint64
	purgedCount          uint64
	lessonCount          uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	enrollmentTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Enrollment state machine transitions",
	}, []string{"event", "from", "to"})

	lessonCompletions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lesson_completions_total",
		Help: "Lesson completion calls by outcome",
	}, []string{"outcome"})

	attemptsGraded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_attempts_graded_total",
		Help: "Graded quiz attempts",
	}, []string{"passed"})

	outboxRelayed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_messages_relayed_total",
		Help: "Outbox messages handed to workers",
	}, []string{"type"})

	attemptsPurged := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempts_purged_total",
		Help: "Attempts removed after their quiz was deleted",
	})

	purgeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quiz_attempt_purge_failures_total",
		Help: "Failed attempt purge runs",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		enrollmentTransitions, lessonCompletions, attemptsGraded, outboxRelayed, attemptsPurged, purgeFailures, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:              registry,
		handler:               handler,
		requestDuration:       requestDuration,
		requestTotal:          requestTotal,
		cacheLatency:          cacheLatency,
		cacheWrite:            cacheWrite,
		cacheHitRatio:         cacheHitRatio,
		cacheHits:             cacheHits,
		cacheMisses:           cacheMisses,
		enrollmentTransitions: enrollmentTransitions,
		lessonCompletions:     lessonCompletions,
		attemptsGraded:        attemptsGraded,
		outboxRelayed:         outboxRelayed,
		attemptsPurged:        attemptsPurged,
		purgeFailures:         purgeFailures,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordTransition counts an applied enrollment transition.
func (m *MetricsService) RecordTransition(t models.Transition) {
	if m == nil {
		return
	}
	m.enrollmentTransitions.WithLabelValues(string(t.Event), string(t.From), string(t.To)).Inc()
}

// RecordLessonCompletion counts completion calls; duplicates are idempotent no-ops.
func (m *MetricsService) RecordLessonCompletion(duplicate bool) {
	if m == nil {
		return
	}
	outcome := "recorded"
	if duplicate {
		outcome = "duplicate"
	} else {
		atomic.AddUint64(&m.lessonCount, 1)
	}
	m.lessonCompletions.WithLabelValues(outcome).Inc()
}

// RecordAttempt counts a graded attempt.
func (m *MetricsService) RecordAttempt(passed bool) {
	if m == nil {
		return
	}
	m.attemptsGraded.WithLabelValues(fmt.Sprintf("%t", passed)).Inc()
	atomic.AddUint64(&m.gradedCount, 1)
}

// RecordOutboxRelayed counts messages handed to the cleanup queue.
func (m *MetricsService) RecordOutboxRelayed(msgType models.OutboxMessageType, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxRelayed.WithLabelValues(string(msgType)).Add(float64(n))
}

// RecordPurge counts attempts removed by a purge run, or a failed run.
func (m *MetricsService) RecordPurge(removed int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.purgeFailures.Inc()
		return
	}
	m.attemptsPurged.Add(float64(removed))
	atomic.AddUint64(&m.purgedCount, uint64(removed))
}

// Snapshot returns aggregated metrics for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AttemptsGraded:           atomic.LoadUint64(&m.gradedCount),
		AttemptsPurged:           atomic.LoadUint64(&m.purgedCount),
		LessonsCompleted:         atomic.LoadUint64(&m.lessonCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
