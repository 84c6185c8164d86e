package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/heatmap/domain"
	"github.com/smallbiznis/storepulse/internal/migration"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	signalrepo "github.com/smallbiznis/storepulse/internal/signal/repository"
	signalservice "github.com/smallbiznis/storepulse/internal/signal/service"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	storerepo "github.com/smallbiznis/storepulse/internal/store/repository"
	storeservice "github.com/smallbiznis/storepulse/internal/store/service"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	svc     domain.Service
	signals signal.Service
	stores  storedomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Now())
	stores := storeservice.New(storeservice.Params{DB: conn, Log: log, GenID: node, Clock: fake, Repo: storerepo.Provide()})
	signals := signalservice.New(signalservice.Params{
		DB: conn, Log: log, GenID: node, Clock: fake, Repo: signalrepo.Provide(), Stores: stores,
	})
	svc := New(Params{Log: log, Signals: signals, Stores: stores, Metrics: metrics.NewNoop()})
	return fixture{svc: svc, signals: signals, stores: stores}
}

func (f fixture) store(t *testing.T, name string) snowflake.ID {
	t.Helper()
	s, err := f.stores.Create(context.Background(), storedomain.CreateStoreRequest{Name: name})
	require.NoError(t, err)
	return s.ID
}

// 2024-03-03 is a Sunday.
var sunday = time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)

func countCells(g *domain.Grid) (withData, empty int) {
	for h := range g.Cells {
		for w := range g.Cells[h] {
			if g.Cells[h][w].Value == nil {
				empty++
			} else {
				withData++
			}
		}
	}
	return withData, empty
}

func TestEmptyGridIsAlways24By7(t *testing.T) {
	f := newFixture(t)
	storeID := f.store(t, "A")

	for _, d := range signal.ScoredDomains {
		grid, err := f.svc.Aggregate(context.Background(), domain.Request{
			Domain: d,
			Scope:  domain.Scope{StoreIDs: []snowflake.ID{storeID}},
			From:   sunday,
			To:     sunday.AddDate(0, 0, 6),
		})
		require.NoError(t, err)
		assert.Len(t, grid.Cells, 24)
		assert.Len(t, grid.Cells[0], 7)
		withData, empty := countCells(grid)
		assert.Zero(t, withData)
		assert.Equal(t, 168, empty)
	}
}

func TestTrafficSumsAndDistinguishesZeroFromMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.store(t, "A")
	b := f.store(t, "B")

	record := func(storeID snowflake.ID, date time.Time, hour int, visitors int64) {
		_, err := f.signals.RecordTrafficSample(ctx, signal.TrafficSampleInput{StoreID: storeID, Date: date, Hour: hour, VisitorCount: visitors})
		require.NoError(t, err)
	}
	record(a, sunday, 9, 30)
	record(b, sunday, 9, 12)
	record(a, sunday.AddDate(0, 0, 7), 9, 8)
	record(a, sunday.AddDate(0, 0, 1), 3, 0)

	grid, err := f.svc.Aggregate(ctx, domain.Request{
		Domain: signal.DomainTraffic,
		Scope:  domain.Scope{All: true},
		From:   sunday,
		To:     sunday.AddDate(0, 0, 13),
	})
	require.NoError(t, err)

	cell := grid.Cells[9][int(time.Sunday)]
	require.NotNil(t, cell.Value)
	assert.Equal(t, 50.0, *cell.Value)
	assert.Equal(t, 3, cell.SampleCount)

	zero := grid.Cells[3][int(time.Monday)]
	require.NotNil(t, zero.Value)
	assert.Equal(t, 0.0, *zero.Value)
	assert.Equal(t, 1, zero.SampleCount)

	assert.Nil(t, grid.Cells[3][int(time.Tuesday)].Value)
	assert.Equal(t, 0, grid.Cells[3][int(time.Tuesday)].SampleCount)

	onlyB, err := f.svc.Aggregate(ctx, domain.Request{
		Domain: signal.DomainTraffic,
		Scope:  domain.Scope{StoreIDs: []snowflake.ID{b}},
		From:   sunday,
		To:     sunday.AddDate(0, 0, 13),
	})
	require.NoError(t, err)
	assert.Equal(t, 12.0, *onlyB.Cells[9][0].Value)
}

func TestTheftCountsIncidentsByHourAndWeekday(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storeID := f.store(t, "A")

	for _, at := range []time.Time{
		sunday.Add(18 * time.Hour),
		sunday.Add(18*time.Hour + 30*time.Minute),
		sunday.AddDate(0, 0, 5).Add(21 * time.Hour),
	} {
		_, err := f.signals.RecordTheftIncident(ctx, signal.TheftIncidentInput{StoreID: storeID, OccurredAt: at, Severity: signal.SeverityLow})
		require.NoError(t, err)
	}

	grid, err := f.svc.Aggregate(ctx, domain.Request{
		Domain: signal.DomainTheft,
		Scope:  domain.Scope{StoreIDs: []snowflake.ID{storeID}},
		From:   sunday,
		To:     sunday.AddDate(0, 0, 6),
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, *grid.Cells[18][int(time.Sunday)].Value)
	assert.Equal(t, 1.0, *grid.Cells[21][int(time.Friday)].Value)
	withData, _ := countCells(grid)
	assert.Equal(t, 2, withData)
}

func TestEmployeeAndRewardsUseSampleWeightedMean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.store(t, "A")
	b := f.store(t, "B")

	for _, in := range []signal.EmployeeSnapshotInput{
		{StoreID: a, Date: sunday, RecordedHour: 8, ProductivityPct: 80, AttendancePct: 80, TrainingPct: 80, SatisfactionPct: 80},
		{StoreID: a, Date: sunday, RecordedHour: 8, ProductivityPct: 60, AttendancePct: 60, TrainingPct: 60, SatisfactionPct: 60},
		{StoreID: b, Date: sunday, RecordedHour: 8, ProductivityPct: 100, AttendancePct: 100, TrainingPct: 100, SatisfactionPct: 100},
	} {
		_, err := f.signals.RecordEmployeeSnapshot(ctx, in)
		require.NoError(t, err)
	}
	_, err := f.signals.RecordRewardsSnapshot(ctx, signal.RewardsSnapshotInput{StoreID: a, Date: sunday, TotalMembers: 10, EngagementPct: 30})
	require.NoError(t, err)
	_, err = f.signals.RecordRewardsSnapshot(ctx, signal.RewardsSnapshotInput{StoreID: b, Date: sunday, TotalMembers: 10, EngagementPct: 50})
	require.NoError(t, err)

	scope := domain.Scope{StoreIDs: []snowflake.ID{a, b}}
	employee, err := f.svc.Aggregate(ctx, domain.Request{Domain: signal.DomainEmployee, Scope: scope, From: sunday, To: sunday})
	require.NoError(t, err)
	assert.Equal(t, 80.0, *employee.Cells[8][0].Value)
	assert.Equal(t, 3, employee.Cells[8][0].SampleCount)

	rewards, err := f.svc.Aggregate(ctx, domain.Request{Domain: signal.DomainRewards, Scope: scope, From: sunday, To: sunday})
	require.NoError(t, err)
	// Unset recorded hour lands in hour 0.
	assert.Equal(t, 40.0, *rewards.Cells[0][0].Value)
}

func TestAggregateRejectsBadScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Aggregate(ctx, domain.Request{Domain: signal.DomainTraffic, From: sunday, To: sunday})
	assert.ErrorIs(t, err, healtherr.ErrInvalidRange)

	_, err = f.svc.Aggregate(ctx, domain.Request{Domain: signal.DomainTraffic, Scope: domain.Scope{StoreIDs: []snowflake.ID{31337}}, From: sunday, To: sunday})
	assert.ErrorIs(t, err, healtherr.ErrUnknownStore)

	_, err = f.svc.Aggregate(ctx, domain.Request{Domain: signal.DomainCampaign, Scope: domain.Scope{All: true}, From: sunday, To: sunday})
	assert.ErrorIs(t, err, healtherr.ErrInvalidRange)

	_, err = f.svc.Aggregate(ctx, domain.Request{Domain: signal.DomainTraffic, Scope: domain.Scope{All: true}, From: sunday, To: sunday.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, healtherr.ErrInvalidRange)
}

func TestCorrelateAlignsCells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	storeID := f.store(t, "A")

	for i, hour := range []int{9, 12, 18} {
		_, err := f.signals.RecordTrafficSample(ctx, signal.TrafficSampleInput{StoreID: storeID, Date: sunday, Hour: hour, VisitorCount: int64(10 * (i + 1))})
		require.NoError(t, err)
		for n := 0; n <= i; n++ {
			_, err := f.signals.RecordTheftIncident(ctx, signal.TheftIncidentInput{StoreID: storeID, OccurredAt: sunday.Add(time.Duration(hour) * time.Hour), Severity: signal.SeverityLow})
			require.NoError(t, err)
		}
	}

	corr, err := f.svc.Correlate(ctx, domain.CorrelateRequest{
		A:     signal.DomainTheft,
		B:     signal.DomainTraffic,
		Scope: domain.Scope{StoreIDs: []snowflake.ID{storeID}},
		From:  sunday,
		To:    sunday,
	})
	require.NoError(t, err)
	require.Len(t, corr.Pairs, 168)

	p := corr.Pairs[12*7+0]
	assert.Equal(t, 12, p.Hour)
	assert.Equal(t, 0, p.Weekday)
	assert.Equal(t, 2.0, *p.A)
	assert.Equal(t, 20.0, *p.B)

	r := corr.Pearson()
	require.NotNil(t, r)
	assert.InDelta(t, 1.0, *r, 1e-9)
}

func TestPearsonNeedsTwoPairs(t *testing.T) {
	one := 1.0
	c := domain.Correlation{Pairs: []domain.Pair{{A: &one, B: &one}, {A: &one}}}
	assert.Nil(t, c.Pearson())

	x1, x2, y1, y2 := 1.0, 2.0, 4.0, 2.0
	c = domain.Correlation{Pairs: []domain.Pair{{A: &x1, B: &y1}, {A: &x2, B: &y2}}}
	r := c.Pearson()
	require.NotNil(t, r)
	assert.InDelta(t, -1.0, *r, 1e-9)
}
