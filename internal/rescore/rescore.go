package rescore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	obscontext "github.com/smallbiznis/storepulse/internal/observability/context"
	obslogger "github.com/smallbiznis/storepulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storepulse/internal/observability/metrics"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"github.com/smallbiznis/storepulse/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const jobRescoreWindow = "rescore_window"

var ErrInvalidConfig = errors.New("invalid_rescore_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Config  config.Config
	Stores  storedomain.Service
	Scoring scoring.Service
	Metrics *obsmetrics.RescoreMetrics `optional:"true"`
}

// Rescorer periodically recomputes composite records for every store over a
// trailing window of days. It only triggers scoring; the scorer owns
// locking and idempotency.
type Rescorer struct {
	log     *zap.Logger
	clock   clock.Clock
	cfg     config.RescoreConfig
	stores  storedomain.Service
	scoring scoring.Service
	metrics *obsmetrics.RescoreMetrics
}

// RunResult summarises one pass.
type RunResult struct {
	RunID       string
	From        time.Time
	To          time.Time
	Stores      int
	Scored      int
	Written     int
	Unchanged   int
	SkippedDays int
}

func New(p Params) (*Rescorer, error) {
	if p.Log == nil || p.Clock == nil || p.Stores == nil || p.Scoring == nil {
		return nil, ErrInvalidConfig
	}
	return &Rescorer{
		log:     p.Log.Named("rescore").With(zap.String("component", "rescore")),
		clock:   p.Clock,
		cfg:     withDefaults(p.Config.Rescore),
		stores:  p.Stores,
		scoring: p.Scoring,
		metrics: p.Metrics,
	}, nil
}

func withDefaults(c config.RescoreConfig) config.RescoreConfig {
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.LookbackDays < 0 {
		c.LookbackDays = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	return c
}

// RunOnce rescores [today - lookback, today] for every store. Per-store
// failures do not stop other stores; they are joined into the returned
// error. A run cut short by its deadline is logged and reported as nil so
// the next tick retries.
func (r *Rescorer) RunOnce(parent context.Context) (RunResult, error) {
	start := r.clock.Now()
	ctx, cancel := context.WithTimeout(parent, r.cfg.JobTimeout)
	defer cancel()

	ctx, runID := correlation.EnsureCorrelationID(ctx, start)
	ctx = obscontext.WithRunID(ctx, runID)
	ctx = obscontext.WithActor(ctx, "system", "rescorer")
	log := obslogger.WithContext(ctx, r.log).With(zap.String("job", jobRescoreWindow))

	r.metrics.IncJobRun(jobRescoreWindow)
	today := clock.Today(r.clock)
	result := RunResult{RunID: runID, From: today.AddDate(0, 0, -r.cfg.LookbackDays), To: today}
	log.Info("rescore started",
		zap.Time("from", result.From),
		zap.Time("to", result.To),
		zap.Int("concurrency", r.cfg.Concurrency),
	)

	err := r.run(ctx, &result)
	r.metrics.ObserveJobDuration(jobRescoreWindow, time.Since(start))
	r.metrics.AddStoresProcessed(jobRescoreWindow, result.Stores)
	r.metrics.AddDaysSkipped(jobRescoreWindow, healtherr.ClassInsufficientData, result.SkippedDays)

	log.Info("rescore finished",
		zap.Int("stores", result.Stores),
		zap.Int("scored", result.Scored),
		zap.Int("written", result.Written),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("skipped_days", result.SkippedDays),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("failed", err != nil),
	)
	if err == nil {
		return result, nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		r.metrics.IncJobTimeout(jobRescoreWindow)
		log.Warn("rescore timed out", zap.Duration("timeout", r.cfg.JobTimeout), zap.Error(err))
		return result, nil
	}
	return result, fmt.Errorf("%s: %w", jobRescoreWindow, err)
}

func (r *Rescorer) run(ctx context.Context, result *RunResult) error {
	ids, err := r.stores.AllIDs(ctx)
	if err != nil {
		r.metrics.IncJobError(jobRescoreWindow, err)
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			out, err := r.rescoreStore(ctx, id, result.From, result.To)

			mu.Lock()
			defer mu.Unlock()
			result.Stores++
			result.Scored += len(out.Records)
			result.Written += out.Written
			result.Unchanged += out.Unchanged
			result.SkippedDays += len(out.Skipped)
			if err != nil {
				r.metrics.IncJobError(jobRescoreWindow, err)
				errs = append(errs, fmt.Errorf("store %s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Rescorer) rescoreStore(ctx context.Context, storeID snowflake.ID, from, to time.Time) (scoring.RangeResult, error) {
	ctx = obscontext.WithStoreID(ctx, storeID.String())
	out, err := r.scoring.ScoreRange(ctx, storeID, from, to)
	if err != nil {
		obslogger.WithContext(ctx, r.log).Warn("store rescore failed",
			zap.String("reason", obsmetrics.ClassifyRescoreReason(err)),
			zap.Error(err),
		)
	}
	return out, err
}

// RunForever runs RunOnce every interval until ctx is done.
func (r *Rescorer) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	nextRun := r.clock.Now()

	for {
		if lag := r.clock.Now().Sub(nextRun); lag > 0 {
			r.metrics.ObserveRunLoopLag(lag)
		}
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Warn("rescore run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(r.cfg.Interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
