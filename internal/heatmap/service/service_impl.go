package service

import (
	"context"
	"fmt"

	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/heatmap/domain"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Signals signal.Service
	Stores  storedomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	signals signal.Service
	stores  storedomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("heatmap.service"),
		signals: p.Signals,
		stores:  p.Stores,
		metrics: p.Metrics,
	}
}

// accumulator sums values per bucket; mean buckets divide by the count.
type accumulator struct {
	sum   [domain.Hours][domain.Weekdays]float64
	count [domain.Hours][domain.Weekdays]int
}

func (a *accumulator) add(hour, weekday int, v float64) {
	if hour < 0 || hour >= domain.Hours || weekday < 0 || weekday >= domain.Weekdays {
		return
	}
	a.sum[hour][weekday] += v
	a.count[hour][weekday]++
}

func (a *accumulator) grid(mean bool) [domain.Hours][domain.Weekdays]domain.Cell {
	var cells [domain.Hours][domain.Weekdays]domain.Cell
	for h := 0; h < domain.Hours; h++ {
		for w := 0; w < domain.Weekdays; w++ {
			n := a.count[h][w]
			if n == 0 {
				continue
			}
			v := a.sum[h][w]
			if mean {
				v /= float64(n)
			}
			cells[h][w] = domain.Cell{Value: &v, SampleCount: n}
		}
	}
	return cells
}

func (s *Service) Aggregate(ctx context.Context, req domain.Request) (*domain.Grid, error) {
	if !req.Domain.Scored() {
		return nil, fmt.Errorf("heatmap domain %q: %w", req.Domain, healtherr.ErrInvalidRange)
	}
	filter, err := s.filter(ctx, req.Scope, req)
	if err != nil {
		return nil, err
	}

	var acc accumulator
	mean := false
	switch req.Domain {
	case signal.DomainTheft:
		incidents, err := s.signals.TheftIncidents(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, i := range incidents {
			acc.add(i.Hour, i.DayOfWeek, 1)
		}
	case signal.DomainTraffic:
		samples, err := s.signals.TrafficSamples(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, t := range samples {
			acc.add(t.Hour, int(t.Date.Weekday()), float64(t.VisitorCount))
		}
	case signal.DomainEmployee:
		mean = true
		snaps, err := s.signals.EmployeeSnapshots(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, e := range snaps {
			acc.add(e.RecordedHour, int(e.Date.Weekday()), e.Mean())
		}
	case signal.DomainRewards:
		mean = true
		snaps, err := s.signals.RewardsSnapshots(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, r := range snaps {
			acc.add(r.RecordedHour, int(r.Date.Weekday()), r.EngagementPct)
		}
	}

	s.metrics.RecordHeatmapBuild(ctx, string(req.Domain), req.Scope.All)
	return &domain.Grid{
		Domain: req.Domain,
		Scope:  req.Scope,
		From:   clock.DateOf(req.From),
		To:     clock.DateOf(req.To),
		Cells:  acc.grid(mean),
	}, nil
}

func (s *Service) Correlate(ctx context.Context, req domain.CorrelateRequest) (*domain.Correlation, error) {
	a, err := s.Aggregate(ctx, domain.Request{Domain: req.A, Scope: req.Scope, From: req.From, To: req.To})
	if err != nil {
		return nil, err
	}
	b, err := s.Aggregate(ctx, domain.Request{Domain: req.B, Scope: req.Scope, From: req.From, To: req.To})
	if err != nil {
		return nil, err
	}

	pairs := make([]domain.Pair, 0, domain.Hours*domain.Weekdays)
	for h := 0; h < domain.Hours; h++ {
		for w := 0; w < domain.Weekdays; w++ {
			pairs = append(pairs, domain.Pair{
				Hour:    h,
				Weekday: w,
				A:       a.Cells[h][w].Value,
				B:       b.Cells[h][w].Value,
				CountA:  a.Cells[h][w].SampleCount,
				CountB:  b.Cells[h][w].SampleCount,
			})
		}
	}
	return &domain.Correlation{A: a, B: b, Pairs: pairs}, nil
}

func (s *Service) filter(ctx context.Context, scope domain.Scope, req domain.Request) (signal.Filter, error) {
	if !scope.All && len(scope.StoreIDs) == 0 {
		return signal.Filter{}, fmt.Errorf("heatmap scope is empty: %w", healtherr.ErrInvalidRange)
	}
	filter := signal.Filter{From: req.From, To: req.To}
	if !scope.All {
		if err := s.stores.ResolveIDs(ctx, scope.StoreIDs); err != nil {
			return signal.Filter{}, err
		}
		filter.StoreIDs = scope.StoreIDs
	}
	return filter, nil
}
