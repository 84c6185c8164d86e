package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	"github.com/smallbiznis/storepulse/internal/signal/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Stores  storedomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	stores  storedomain.Service
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("signal.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		stores:  p.Stores,
		metrics: p.Metrics,
	}
}

func (s *Service) RecordTheftIncident(ctx context.Context, in domain.TheftIncidentInput) (*domain.TheftIncident, error) {
	if in.OccurredAt.IsZero() {
		return nil, invalid("occurred_at is required")
	}
	if !in.Severity.Valid() {
		return nil, invalid("severity %q", in.Severity)
	}
	if err := nonNegative("value", in.Value); err != nil {
		return nil, err
	}

	occurred := in.OccurredAt.UTC()
	record := &domain.TheftIncident{
		ID:          s.genID.Generate(),
		StoreID:     in.StoreID,
		OccurredAt:  occurred,
		Hour:        occurred.Hour(),
		DayOfWeek:   int(occurred.Weekday()),
		Severity:    in.Severity,
		Value:       in.Value,
		Resolved:    in.Resolved,
		EvidenceRef: strings.TrimSpace(in.EvidenceRef),
		CreatedAt:   s.clock.Now(),
	}
	if in.Resolved {
		record.ResolvedAt = &record.CreatedAt
	}
	if err := s.insert(ctx, domain.DomainTheft, in.StoreID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) RecordRewardsSnapshot(ctx context.Context, in domain.RewardsSnapshotInput) (*domain.RewardsSnapshot, error) {
	if in.Date.IsZero() {
		return nil, invalid("date is required")
	}
	if err := hour("recorded_hour", in.RecordedHour); err != nil {
		return nil, err
	}
	if in.TotalMembers < 0 || in.NewMembers < 0 || in.ActiveCampaigns < 0 {
		return nil, invalid("counts must be non-negative")
	}
	if in.NewMembers > in.TotalMembers {
		return nil, invalid("new_members %d exceeds total_members %d", in.NewMembers, in.TotalMembers)
	}
	if err := percent("engagement_pct", in.EngagementPct); err != nil {
		return nil, err
	}

	record := &domain.RewardsSnapshot{
		ID:              s.genID.Generate(),
		StoreID:         in.StoreID,
		Date:            clock.DateOf(in.Date),
		RecordedHour:    in.RecordedHour,
		TotalMembers:    in.TotalMembers,
		NewMembers:      in.NewMembers,
		EngagementPct:   in.EngagementPct,
		ActiveCampaigns: in.ActiveCampaigns,
		CreatedAt:       s.clock.Now(),
	}
	if err := s.insert(ctx, domain.DomainRewards, in.StoreID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) RecordTrafficSample(ctx context.Context, in domain.TrafficSampleInput) (*domain.TrafficSample, error) {
	if in.Date.IsZero() {
		return nil, invalid("date is required")
	}
	if err := hour("hour", in.Hour); err != nil {
		return nil, err
	}
	if in.VisitorCount < 0 {
		return nil, invalid("visitor_count must be non-negative")
	}
	if err := percent("conversion_pct", in.ConversionPct); err != nil {
		return nil, err
	}

	record := &domain.TrafficSample{
		ID:            s.genID.Generate(),
		StoreID:       in.StoreID,
		Date:          clock.DateOf(in.Date),
		Hour:          in.Hour,
		VisitorCount:  in.VisitorCount,
		ConversionPct: in.ConversionPct,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.insert(ctx, domain.DomainTraffic, in.StoreID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) RecordEmployeeSnapshot(ctx context.Context, in domain.EmployeeSnapshotInput) (*domain.EmployeeSnapshot, error) {
	if in.Date.IsZero() {
		return nil, invalid("date is required")
	}
	if err := hour("recorded_hour", in.RecordedHour); err != nil {
		return nil, err
	}
	for name, value := range map[string]float64{
		"productivity_pct": in.ProductivityPct,
		"attendance_pct":   in.AttendancePct,
		"training_pct":     in.TrainingPct,
		"satisfaction_pct": in.SatisfactionPct,
	} {
		if err := percent(name, value); err != nil {
			return nil, err
		}
	}
	if in.MobileUsageIncidents < 0 {
		return nil, invalid("mobile_usage_incidents must be non-negative")
	}

	record := &domain.EmployeeSnapshot{
		ID:                   s.genID.Generate(),
		StoreID:              in.StoreID,
		Date:                 clock.DateOf(in.Date),
		RecordedHour:         in.RecordedHour,
		Shift:                strings.TrimSpace(in.Shift),
		ProductivityPct:      in.ProductivityPct,
		AttendancePct:        in.AttendancePct,
		TrainingPct:          in.TrainingPct,
		SatisfactionPct:      in.SatisfactionPct,
		MobileUsageIncidents: in.MobileUsageIncidents,
		CreatedAt:            s.clock.Now(),
	}
	if err := s.insert(ctx, domain.DomainEmployee, in.StoreID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) RecordCampaignPerformance(ctx context.Context, in domain.CampaignPerformanceInput) (*domain.CampaignPerformance, error) {
	if in.Date.IsZero() {
		return nil, invalid("date is required")
	}
	campaign := strings.TrimSpace(in.Campaign)
	if campaign == "" {
		return nil, domain.ErrInvalidCampaign
	}
	if err := percent("participation_pct", in.ParticipationPct); err != nil {
		return nil, err
	}
	if err := percent("redemption_pct", in.RedemptionPct); err != nil {
		return nil, err
	}
	if math.IsNaN(in.ROI) || math.IsInf(in.ROI, 0) {
		return nil, invalid("roi must be finite")
	}

	record := &domain.CampaignPerformance{
		ID:               s.genID.Generate(),
		StoreID:          in.StoreID,
		Date:             clock.DateOf(in.Date),
		Campaign:         campaign,
		ParticipationPct: in.ParticipationPct,
		RedemptionPct:    in.RedemptionPct,
		ROI:              in.ROI,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.insert(ctx, domain.DomainCampaign, in.StoreID, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) insert(ctx context.Context, d domain.Domain, storeID snowflake.ID, record any) error {
	if err := s.stores.ResolveIDs(ctx, []snowflake.ID{storeID}); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		s.log.Error("failed to record signal", zap.String("domain", string(d)), zap.String("store_id", storeID.String()), zap.Error(err))
		return err
	}
	s.metrics.RecordSignal(ctx, string(d))
	return nil
}

func (s *Service) ResolveIncident(ctx context.Context, storeID, incidentID snowflake.ID) (*domain.TheftIncident, error) {
	incident, err := s.repo.FindIncident(ctx, s.db, storeID, incidentID)
	if err != nil {
		return nil, err
	}
	if incident == nil {
		return nil, domain.ErrIncidentNotFound
	}
	if incident.ResolvedAt != nil {
		return incident, nil
	}

	if err := s.repo.MarkResolved(ctx, s.db, storeID, incidentID, s.clock.Now()); err != nil {
		return nil, err
	}
	return s.repo.FindIncident(ctx, s.db, storeID, incidentID)
}

func (s *Service) TheftIncidents(ctx context.Context, f domain.Filter) ([]domain.TheftIncident, error) {
	rng, err := toRange(f)
	if err != nil {
		return nil, err
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return nil, invalid("severity %q", f.Severity)
	}
	rng.Severity = f.Severity
	rng.Resolved = f.Resolved
	return s.repo.ListTheft(ctx, s.db, rng)
}

func (s *Service) RewardsSnapshots(ctx context.Context, f domain.Filter) ([]domain.RewardsSnapshot, error) {
	rng, err := toRange(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRewards(ctx, s.db, rng)
}

func (s *Service) TrafficSamples(ctx context.Context, f domain.Filter) ([]domain.TrafficSample, error) {
	rng, err := toRange(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTraffic(ctx, s.db, rng)
}

func (s *Service) EmployeeSnapshots(ctx context.Context, f domain.Filter) ([]domain.EmployeeSnapshot, error) {
	rng, err := toRange(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListEmployee(ctx, s.db, rng)
}

func (s *Service) CampaignPerformance(ctx context.Context, f domain.Filter) ([]domain.CampaignPerformance, error) {
	rng, err := toRange(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCampaign(ctx, s.db, rng)
}

func (s *Service) Purge(ctx context.Context, storeID snowflake.ID, before time.Time) (domain.PurgeResult, error) {
	if before.IsZero() {
		return domain.PurgeResult{}, invalid("purge cutoff is required")
	}
	if err := s.stores.ResolveIDs(ctx, []snowflake.ID{storeID}); err != nil {
		return domain.PurgeResult{}, err
	}

	result := domain.PurgeResult{Deleted: map[domain.Domain]int64{}}
	kinds := append(append([]domain.Domain{}, domain.ScoredDomains...), domain.DomainCampaign)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range kinds {
			n, err := s.repo.DeleteBefore(ctx, tx, d, storeID, before.UTC())
			if err != nil {
				return fmt.Errorf("purge %s: %w", d, err)
			}
			result.Deleted[d] = n
		}
		return nil
	})
	if err != nil {
		return domain.PurgeResult{}, err
	}

	s.log.Info("purged raw signals",
		zap.String("store_id", storeID.String()),
		zap.Time("before", before.UTC()),
		zap.Any("deleted", result.Deleted),
	)
	return result, nil
}

// toRange turns inclusive calendar dates into a half-open UTC window.
func toRange(f domain.Filter) (domain.Range, error) {
	if f.From.IsZero() || f.To.IsZero() {
		return domain.Range{}, invalid("from and to are required")
	}
	from := clock.DateOf(f.From)
	to := clock.DateOf(f.To)
	if from.After(to) {
		return domain.Range{}, invalid("from %s is after to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return domain.Range{
		StoreIDs: f.StoreIDs,
		From:     from,
		Until:    to.AddDate(0, 0, 1),
	}, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), healtherr.ErrInvalidRange)
}

func hour(name string, v int) error {
	if v < 0 || v > 23 {
		return invalid("%s %d outside [0,24)", name, v)
	}
	return nil
}

func percent(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return invalid("%s %v outside [0,100]", name, v)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return invalid("%s must be non-negative", name)
	}
	return nil
}
