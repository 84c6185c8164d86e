package rescore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/lock"
	"github.com/smallbiznis/storepulse/internal/migration"
	obsmetrics "github.com/smallbiznis/storepulse/internal/observability/metrics"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
	"github.com/smallbiznis/storepulse/internal/scoring/normalizer"
	scoringrepo "github.com/smallbiznis/storepulse/internal/scoring/repository"
	scoringservice "github.com/smallbiznis/storepulse/internal/scoring/service"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	signalrepo "github.com/smallbiznis/storepulse/internal/signal/repository"
	signalservice "github.com/smallbiznis/storepulse/internal/signal/service"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	storerepo "github.com/smallbiznis/storepulse/internal/store/repository"
	storeservice "github.com/smallbiznis/storepulse/internal/store/service"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func rescoreConfig(lookback int) config.Config {
	return config.Config{Rescore: config.RescoreConfig{
		Interval:     time.Minute,
		LookbackDays: lookback,
		Concurrency:  2,
		JobTimeout:   time.Minute,
	}}
}

func TestRunOnceScoresEveryStoreOverWindow(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(now)
	stores := storeservice.New(storeservice.Params{DB: conn, Log: log, GenID: node, Clock: fake, Repo: storerepo.Provide()})
	signals := signalservice.New(signalservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: signalrepo.Provide(), Stores: stores,
	})
	reg := prometheus.NewRegistry()
	m := obsmetrics.NewRescoreMetrics(reg, obsmetrics.Config{ServiceName: "storepulse", Environment: "test"})
	scorer := scoringservice.New(scoringservice.Params{
		DB:      conn,
		Log:     log,
		GenID:   node,
		Clock:   fake,
		Repo:    scoringrepo.Provide(),
		Loader:  normalizer.NewLoader(signals),
		Stores:  stores,
		Config:  config.NewStaticScoringConfigHolder(config.DefaultScoringConfig()),
		Locker:  lock.NewLocalLocker(),
		Rescore: m,
	})

	ctx := context.Background()
	today := clock.Today(fake)
	var ids []snowflake.ID
	for _, name := range []string{"Store 1", "Store 2", "Store 3"} {
		s, err := stores.Create(ctx, storedomain.CreateStoreRequest{Name: name})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	// Store 1 has data today and yesterday, store 2 only today, store 3 none.
	for _, seed := range []struct {
		store snowflake.ID
		date  time.Time
	}{{ids[0], today}, {ids[0], today.AddDate(0, 0, -1)}, {ids[1], today}} {
		_, err := signals.RecordTrafficSample(ctx, signal.TrafficSampleInput{
			StoreID: seed.store, Date: seed.date, Hour: 10, VisitorCount: 50, ConversionPct: 60,
		})
		require.NoError(t, err)
	}

	r, err := New(Params{Log: log, Clock: fake, Config: rescoreConfig(1), Stores: stores, Scoring: scorer, Metrics: m})
	require.NoError(t, err)

	result, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.True(t, result.From.Equal(today.AddDate(0, 0, -1)))
	assert.Equal(t, 3, result.Stores)
	assert.Equal(t, 3, result.Scored)
	assert.Equal(t, 3, result.Written)
	assert.Zero(t, result.Unchanged)
	assert.Equal(t, 3, result.SkippedDays)

	records, err := scorer.List(ctx, scoring.ListFilter{StoreIDs: ids, From: result.From, To: result.To})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	assert.Equal(t, 1.0, counterValue(t, reg, "storepulse_rescore_job_runs_total", map[string]string{"job": jobRescoreWindow}))
	assert.Equal(t, 3.0, counterValue(t, reg, "storepulse_rescore_stores_processed_total", map[string]string{"job": jobRescoreWindow}))
	assert.Equal(t, 3.0, counterValue(t, reg, "storepulse_rescore_days_skipped_total", map[string]string{
		"job": jobRescoreWindow, "reason": healtherr.ClassInsufficientData,
	}))

	// A second pass rewrites nothing and yields the same records.
	again, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, result.RunID, again.RunID)
	assert.Equal(t, 3, again.Scored)
	assert.Zero(t, again.Written)
	assert.Equal(t, 3, again.Unchanged)
}

type mockStores struct {
	storedomain.Service
	mock.Mock
}

func (m *mockStores) AllIDs(ctx context.Context) ([]snowflake.ID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]snowflake.ID)
	return ids, args.Error(1)
}

type mockScoring struct {
	scoring.Service
	mock.Mock
}

func (m *mockScoring) ScoreRange(ctx context.Context, storeID snowflake.ID, from, to time.Time) (scoring.RangeResult, error) {
	args := m.Called(ctx, storeID, from, to)
	return args.Get(0).(scoring.RangeResult), args.Error(1)
}

func TestRunOnceJoinsPerStoreErrors(t *testing.T) {
	stores := &mockStores{}
	stores.On("AllIDs", mock.Anything).Return([]snowflake.ID{1, 2}, nil)

	boom := errors.New("boom")
	scorer := &mockScoring{}
	scorer.On("ScoreRange", mock.Anything, snowflake.ID(1), mock.Anything, mock.Anything).
		Return(scoring.RangeResult{Records: []scoring.CompositeHealthRecord{{}}, Written: 1}, nil)
	scorer.On("ScoreRange", mock.Anything, snowflake.ID(2), mock.Anything, mock.Anything).
		Return(scoring.RangeResult{}, boom)

	reg := prometheus.NewRegistry()
	m := obsmetrics.NewRescoreMetrics(reg, obsmetrics.Config{})
	r, err := New(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(now), Config: rescoreConfig(0), Stores: stores, Scoring: scorer, Metrics: m})
	require.NoError(t, err)

	result, err := r.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, result.Stores)
	assert.Equal(t, 1, result.Scored)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 1.0, counterValue(t, reg, "storepulse_rescore_job_errors_total", map[string]string{
		"job": jobRescoreWindow, "reason": obsmetrics.RescoreReasonUnknown,
	}))
	scorer.AssertNumberOfCalls(t, "ScoreRange", 2)
}

func TestRunOnceTreatsDeadlineAsSoftTimeout(t *testing.T) {
	stores := &mockStores{}
	stores.On("AllIDs", mock.Anything).Return([]snowflake.ID{1}, nil)
	scorer := &mockScoring{}
	scorer.On("ScoreRange", mock.Anything, snowflake.ID(1), mock.Anything, mock.Anything).
		Return(scoring.RangeResult{}, context.DeadlineExceeded)

	reg := prometheus.NewRegistry()
	m := obsmetrics.NewRescoreMetrics(reg, obsmetrics.Config{})
	r, err := New(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(now), Config: rescoreConfig(0), Stores: stores, Scoring: scorer, Metrics: m})
	require.NoError(t, err)

	_, err = r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, reg, "storepulse_rescore_job_timeouts_total", map[string]string{"job": jobRescoreWindow}))
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	stores := &mockStores{}
	stores.On("AllIDs", mock.Anything).Return([]snowflake.ID{}, nil)
	r, err := New(Params{Log: zap.NewNop(), Clock: clock.NewFakeClock(now), Config: rescoreConfig(0), Stores: stores, Scoring: &mockScoring{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunForever(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunForever did not stop")
	}
	stores.AssertCalled(t, "AllIDs", mock.Anything)
}
