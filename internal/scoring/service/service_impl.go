package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/lock"
	obscontext "github.com/smallbiznis/storepulse/internal/observability/context"
	"github.com/smallbiznis/storepulse/internal/observability/logger"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	"github.com/smallbiznis/storepulse/internal/observability/tracing"
	"github.com/smallbiznis/storepulse/internal/scoring/domain"
	"github.com/smallbiznis/storepulse/internal/scoring/normalizer"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeWritten          = "written"
	outcomeUnchanged        = "unchanged"
	outcomeInsufficientData = "insufficient_data"
	outcomeError            = "error"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Loader  *normalizer.Loader
	Stores  storedomain.Service
	Config  *config.ScoringConfigHolder
	Locker  lock.KeyedLocker
	Metrics *metrics.Metrics        `optional:"true"`
	Rescore *metrics.RescoreMetrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	loader  *normalizer.Loader
	stores  storedomain.Service
	config  *config.ScoringConfigHolder
	locker  lock.KeyedLocker
	metrics *metrics.Metrics
	rescore *metrics.RescoreMetrics
	tracer  trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("scoring.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		loader:  p.Loader,
		stores:  p.Stores,
		config:  p.Config,
		locker:  p.Locker,
		metrics: p.Metrics,
		rescore: p.Rescore,
		tracer:  otel.Tracer("storepulse/scoring"),
	}
}

func (s *Service) Score(ctx context.Context, storeID snowflake.ID, date time.Time) (*domain.CompositeHealthRecord, error) {
	record, _, err := s.scoreDay(ctx, storeID, date)
	return record, err
}

func (s *Service) scoreDay(ctx context.Context, storeID snowflake.ID, date time.Time) (*domain.CompositeHealthRecord, string, error) {
	if date.IsZero() {
		return nil, outcomeError, fmt.Errorf("score date is required: %w", healtherr.ErrInvalidRange)
	}
	date = clock.DateOf(date)

	ctx, span := s.tracer.Start(ctx, "scoring.Score", trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("store_id", storeID.String()),
		attribute.String("date", date.Format(time.DateOnly)),
	)...))
	defer span.End()

	start := time.Now()
	record, outcome, err := s.score(ctx, storeID, date)
	s.metrics.RecordScoringRun(ctx, outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		if outcome == outcomeError {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "scoring failed")
		}
		return nil, outcome, err
	}
	return record, outcome, nil
}

func (s *Service) score(ctx context.Context, storeID snowflake.ID, date time.Time) (*domain.CompositeHealthRecord, string, error) {
	log := logger.WithContext(obscontext.WithStoreID(ctx, storeID.String()), s.log)

	if err := s.stores.ResolveIDs(ctx, []snowflake.ID{storeID}); err != nil {
		return nil, outcomeError, err
	}

	cfg := s.config.Get()
	params := normalizer.ParamsFrom(cfg)

	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, lockKey(storeID, date))
	s.rescore.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		return nil, outcomeError, err
	}
	defer unlock()

	sub := make(map[signal.Domain]float64, len(signal.ScoredDomains))
	var sources []domain.RecordSource
	for _, d := range signal.ScoredDomains {
		in, err := s.loader.Load(ctx, d, storeID, date, date)
		if err != nil {
			return nil, outcomeError, err
		}
		v, err := normalizer.Normalize(d, in, params)
		if errors.Is(err, healtherr.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, outcomeError, err
		}
		sub[d] = v
		for _, id := range in.IDs(d) {
			sources = append(sources, domain.RecordSource{StoreID: storeID, Date: date, Domain: d, RecordID: id})
		}
	}
	if len(sub) == 0 {
		log.Debug("no raw data for date", zap.Time("date", date))
		return nil, outcomeInsufficientData, fmt.Errorf("store %s on %s: %w", storeID, date.Format(time.DateOnly), healtherr.ErrInsufficientData)
	}

	overall, err := domain.Compose(sub, cfg.Weights)
	if err != nil {
		return nil, outcomeError, err
	}

	trailing, err := s.trailingAverages(ctx, storeID, date, sub, params, cfg.Alerts.TrailingDays)
	if err != nil {
		return nil, outcomeError, err
	}

	record := &domain.CompositeHealthRecord{
		StoreID:      storeID,
		Date:         date,
		OverallScore: overall,
		Weights:      datatypes.NewJSONType(cfg.Weights),
		Alerts:       domain.EvaluateAlerts(sub, trailing, cfg.Alerts),
		Sources:      sources,
	}
	if record.Alerts == nil {
		record.Alerts = []domain.Alert{}
	}
	for d, v := range sub {
		switch d {
		case signal.DomainTheft:
			record.TheftScore = &v
		case signal.DomainRewards:
			record.RewardsScore = &v
		case signal.DomainTraffic:
			record.TrafficScore = &v
		case signal.DomainEmployee:
			record.EmployeeScore = &v
		}
	}
	record.Fingerprint = domain.Fingerprint(*record)

	outcome := outcomeWritten
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindRecord(ctx, tx, storeID, date)
		if err != nil {
			return err
		}
		if existing != nil && existing.Fingerprint == record.Fingerprint {
			alerts, err := s.alertsFor(ctx, tx, []snowflake.ID{storeID}, date, date)
			if err != nil {
				return err
			}
			existing.Alerts = alerts[recordKey(storeID, date)]
			if existing.Alerts == nil {
				existing.Alerts = []domain.Alert{}
			}
			existing.Sources = record.Sources
			*record = *existing
			outcome = outcomeUnchanged
			return nil
		}

		if existing != nil {
			record.ID = existing.ID
		} else {
			record.ID = s.genID.Generate()
		}
		// Postgres keeps microseconds; truncate so the returned value matches a re-read.
		record.ComputedAt = s.clock.Now().UTC().Truncate(time.Microsecond)
		for i := range record.Alerts {
			record.Alerts[i].ID = s.genID.Generate()
			record.Alerts[i].StoreID = storeID
			record.Alerts[i].Date = date
		}

		if err := s.repo.UpsertRecord(ctx, tx, record); err != nil {
			return err
		}
		if err := s.repo.ReplaceSources(ctx, tx, storeID, date, record.Sources); err != nil {
			return err
		}
		return s.repo.ReplaceAlerts(ctx, tx, storeID, date, record.Alerts)
	})
	if err != nil {
		log.Error("failed to persist health record", zap.Error(err))
		return nil, outcomeError, err
	}

	if outcome == outcomeWritten {
		for _, a := range record.Alerts {
			s.metrics.RecordAlert(ctx, string(a.Domain), string(a.Condition), string(a.Severity))
		}
		log.Info("health record written",
			zap.Time("date", date),
			zap.Float64("overall_score", record.OverallScore),
			zap.Int("alerts", len(record.Alerts)),
		)
	}
	return record, outcome, nil
}

// trailingAverages recomputes each present domain's sub-score over the days
// before date, skipping days without data.
func (s *Service) trailingAverages(ctx context.Context, storeID snowflake.ID, date time.Time, sub map[signal.Domain]float64, params normalizer.Params, days int) (map[signal.Domain]float64, error) {
	out := map[signal.Domain]float64{}
	for d := range sub {
		var total float64
		var n int
		for k := 1; k <= days; k++ {
			v, err := s.loader.Normalize(ctx, d, storeID, date.AddDate(0, 0, -k), params)
			if errors.Is(err, healtherr.ErrInsufficientData) {
				continue
			}
			if err != nil {
				return nil, err
			}
			total += v
			n++
		}
		if n > 0 {
			out[d] = total / float64(n)
		}
	}
	return out, nil
}

func (s *Service) ScoreRange(ctx context.Context, storeID snowflake.ID, from, to time.Time) (domain.RangeResult, error) {
	if from.IsZero() || to.IsZero() || clock.DateOf(from).After(clock.DateOf(to)) {
		return domain.RangeResult{}, fmt.Errorf("score range: %w", healtherr.ErrInvalidRange)
	}

	result := domain.RangeResult{Records: []domain.CompositeHealthRecord{}, Skipped: []time.Time{}}
	for day := clock.DateOf(from); !day.After(clock.DateOf(to)); day = day.AddDate(0, 0, 1) {
		record, outcome, err := s.scoreDay(ctx, storeID, day)
		if errors.Is(err, healtherr.ErrInsufficientData) {
			result.Skipped = append(result.Skipped, day)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("score %s: %w", day.Format(time.DateOnly), err)
		}
		result.Records = append(result.Records, *record)
		if outcome == outcomeUnchanged {
			result.Unchanged++
		} else {
			result.Written++
		}
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, storeID snowflake.ID, date time.Time) (*domain.CompositeHealthRecord, error) {
	date = clock.DateOf(date)
	record, err := s.repo.FindRecord(ctx, s.db, storeID, date)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}
	alerts, err := s.alertsFor(ctx, s.db, []snowflake.ID{storeID}, date, date)
	if err != nil {
		return nil, err
	}
	record.Alerts = alerts[recordKey(storeID, date)]
	if record.Alerts == nil {
		record.Alerts = []domain.Alert{}
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.CompositeHealthRecord, error) {
	if filter.From.IsZero() || filter.To.IsZero() || clock.DateOf(filter.From).After(clock.DateOf(filter.To)) {
		return nil, fmt.Errorf("list health records: %w", healtherr.ErrInvalidRange)
	}
	from, to := clock.DateOf(filter.From), clock.DateOf(filter.To)

	records, err := s.repo.ListRecords(ctx, s.db, domain.RecordRange{
		StoreIDs: filter.StoreIDs,
		From:     from,
		Until:    to.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, err
	}
	alerts, err := s.alertsFor(ctx, s.db, filter.StoreIDs, from, to)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Alerts = alerts[recordKey(records[i].StoreID, records[i].Date)]
		if records[i].Alerts == nil {
			records[i].Alerts = []domain.Alert{}
		}
	}
	return records, nil
}

func (s *Service) alertsFor(ctx context.Context, db *gorm.DB, storeIDs []snowflake.ID, from, to time.Time) (map[string][]domain.Alert, error) {
	alerts, err := s.repo.ListAlerts(ctx, db, domain.RecordRange{
		StoreIDs: storeIDs,
		From:     from,
		Until:    to.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, err
	}
	grouped := map[string][]domain.Alert{}
	for _, a := range alerts {
		key := recordKey(a.StoreID, a.Date)
		grouped[key] = append(grouped[key], a)
	}
	for _, list := range grouped {
		domain.SortAlerts(list)
	}
	return grouped, nil
}

func (s *Service) Sources(ctx context.Context, storeID snowflake.ID, date time.Time, d signal.Domain) ([]snowflake.ID, error) {
	ids, err := s.repo.ListSources(ctx, s.db, storeID, clock.DateOf(date), d)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []snowflake.ID{}
	}
	return ids, nil
}

func recordKey(storeID snowflake.ID, date time.Time) string {
	return storeID.String() + "/" + date.Format(time.DateOnly)
}

func lockKey(storeID snowflake.ID, date time.Time) string {
	return "storepulse:score:" + recordKey(storeID, date)
}
