package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the orchestration engine.
// A zero-value or disabled Metrics is a safe no-op.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	// Skill metrics
	skillsExecuted *prometheus.CounterVec
	skillDuration  *prometheus.HistogramVec

	// Admission metrics
	admissions *prometheus.CounterVec

	// Retry wrapper metrics
	taskFailures  *prometheus.CounterVec
	retryAttempts *prometheus.CounterVec
	retryWait     prometheus.Histogram

	// Compensation metrics
	compensations *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
			[]string{"intent"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
		skillsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skills_executed_total",
				Help:      "Total number of skill invocations",
			},
			[]string{"skill", "status"},
		),
		skillDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "skill_duration_seconds",
				Help:      "Duration of skill invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"skill"},
		),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Total number of admission decisions",
			},
			[]string{"outcome"},
		),
		taskFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_failures_total",
				Help:      "Total number of task failures by failure class",
			},
			[]string{"task", "class"},
		),
		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts by failure class",
			},
			[]string{"task", "class"},
		),
		retryWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retry_wait_seconds",
				Help:      "Time spent waiting between retry attempts in seconds",
				Buckets:   buckets,
			},
		),
		compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compensations_total",
				Help:      "Total number of compensator invocations",
			},
			[]string{"skill", "status"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by failure class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.skillsExecuted,
		m.skillDuration,
		m.admissions,
		m.taskFailures,
		m.retryAttempts,
		m.retryWait,
		m.compensations,
		m.errorsByClass,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(intent string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(intent).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordSkillExecution records one skill invocation.
func (m *Metrics) RecordSkillExecution(skill, status string, duration time.Duration) {
	if m.skillsExecuted == nil {
		return
	}
	m.skillsExecuted.WithLabelValues(skill, status).Inc()
	m.skillDuration.WithLabelValues(skill).Observe(duration.Seconds())
}

// RecordAdmission records an admission decision outcome
// (admitted, duplicate, replayed).
func (m *Metrics) RecordAdmission(outcome string) {
	if m.admissions == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

// RecordTaskFailure records a task failure by failure class.
func (m *Metrics) RecordTaskFailure(task, class string) {
	if m.taskFailures == nil {
		return
	}
	m.taskFailures.WithLabelValues(task, class).Inc()
	m.errorsByClass.WithLabelValues(class).Inc()
}

// RecordRetryAttempt records a retry attempt and the backoff wait before it.
func (m *Metrics) RecordRetryAttempt(task, class string, wait time.Duration) {
	if m.retryAttempts == nil {
		return
	}
	m.retryAttempts.WithLabelValues(task, class).Inc()
	m.retryWait.Observe(wait.Seconds())
}

// RecordCompensation records a compensator invocation outcome.
func (m *Metrics) RecordCompensation(skill, status string) {
	if m.compensations == nil {
		return
	}
	m.compensations.WithLabelValues(skill, status).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics endpoint.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			FromContext(context.Background()).WithError(err).Error("metrics server stopped")
		}
	}()

	return nil
}
