package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/lock"
	"gorm.io/gorm"
)

const (
	RescoreReasonDeadlineExceeded     = "deadline_exceeded"
	RescoreReasonDBLockTimeout        = "db_lock_timeout"
	RescoreReasonSerializationFailure = "serialization_failure"
	RescoreReasonUniqueViolation      = "unique_violation"
	RescoreReasonLockUnavailable      = "lock_unavailable"
	RescoreReasonUnknownStore         = "unknown_store"
	RescoreReasonUnknown              = "unknown"
)

// RescoreMetrics captures health of the rescoring trigger loop.
type RescoreMetrics struct {
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobTimeouts     *prometheus.CounterVec
	jobErrors       *prometheus.CounterVec
	storesProcessed *prometheus.CounterVec
	daysSkipped     *prometheus.CounterVec
	runLoopLag      prometheus.Observer
	lockWait        prometheus.Observer
}

var (
	rescoreMetricsOnce sync.Once
	rescoreMetrics     *RescoreMetrics
)

// Rescore returns the singleton registered on the default registerer.
func Rescore() *RescoreMetrics {
	return RescoreWithConfig(Config{})
}

func RescoreWithConfig(cfg Config) *RescoreMetrics {
	rescoreMetricsOnce.Do(func() {
		rescoreMetrics = NewRescoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return rescoreMetrics
}

// ResetRescoreMetricsForTest resets the singleton for tests.
func ResetRescoreMetricsForTest() {
	rescoreMetricsOnce = sync.Once{}
	rescoreMetrics = nil
}

func NewRescoreMetrics(registerer prometheus.Registerer, cfg Config) *RescoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "storepulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_rescore_job_runs_total",
		Help:        "Rescore job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "storepulse_rescore_job_duration_seconds",
		Help:        "Rescore job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_rescore_job_timeouts_total",
		Help:        "Rescore job runs cut short by their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_rescore_job_errors_total",
		Help:        "Rescore job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	storesProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_rescore_stores_processed_total",
		Help:        "Stores rescored per job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	daysSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "storepulse_rescore_days_skipped_total",
		Help:        "Store-days skipped during rescoring by reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "storepulse_rescore_runloop_lag_seconds",
		Help:        "Rescore run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "storepulse_score_lock_wait_seconds",
		Help:        "Time spent waiting for the per store-date scoring lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		storesProcessed,
		daysSkipped,
		runLoopLag,
		lockWait,
	)

	return &RescoreMetrics{
		jobRuns:         jobRuns,
		jobDuration:     jobDuration,
		jobTimeouts:     jobTimeouts,
		jobErrors:       jobErrors,
		storesProcessed: storesProcessed,
		daysSkipped:     daysSkipped,
		runLoopLag:      runLoopLag,
		lockWait:        lockWait,
	}
}

func (m *RescoreMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *RescoreMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *RescoreMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *RescoreMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyRescoreReason(err)).Inc()
}

func (m *RescoreMetrics) AddStoresProcessed(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.storesProcessed.WithLabelValues(job).Add(float64(count))
}

func (m *RescoreMetrics) AddDaysSkipped(job, reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.daysSkipped.WithLabelValues(job, reason).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *RescoreMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

func (m *RescoreMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(duration.Seconds())
}

// ClassifyRescoreReason maps rescoring errors to low-cardinality reasons.
func ClassifyRescoreReason(err error) string {
	switch {
	case err == nil:
		return RescoreReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return RescoreReasonDeadlineExceeded
	case errors.Is(err, lock.ErrLockUnavailable):
		return RescoreReasonLockUnavailable
	case errors.Is(err, healtherr.ErrUnknownStore):
		return RescoreReasonUnknownStore
	case hasPGCode(err, "55P03"):
		return RescoreReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return RescoreReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return RescoreReasonUniqueViolation
	default:
		return RescoreReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
