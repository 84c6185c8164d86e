package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/authorization"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	heatmap "github.com/smallbiznis/storepulse/internal/heatmap/domain"
	obscontext "github.com/smallbiznis/storepulse/internal/observability/context"
	"github.com/smallbiznis/storepulse/internal/observability/logger"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	"github.com/smallbiznis/storepulse/internal/observability/tracing"
	"github.com/smallbiznis/storepulse/internal/query/domain"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
	"github.com/smallbiznis/storepulse/internal/scoring/normalizer"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSummaryDays = 30

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Authz   authorization.Service
	Stores  storedomain.Service
	Signals signal.Service
	Scoring scoring.Service
	Heatmap heatmap.Service
	Loader  *normalizer.Loader
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	authz   authorization.Service
	stores  storedomain.Service
	signals signal.Service
	scoring scoring.Service
	heatmap heatmap.Service
	loader  *normalizer.Loader
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("query.service"),
		clock:   p.Clock,
		authz:   p.Authz,
		stores:  p.Stores,
		signals: p.Signals,
		scoring: p.Scoring,
		heatmap: p.Heatmap,
		loader:  p.Loader,
		metrics: p.Metrics,
		tracer:  otel.Tracer("storepulse/query"),
	}
}

func (s *Service) HealthRecords(ctx context.Context, vc domain.ViewContext, req domain.HealthRequest) (domain.HealthResult, error) {
	ctx, span := s.start(ctx, "query.HealthRecords", vc)
	defer span.End()

	result, err := s.healthRecords(ctx, vc, req, authorization.ActionView, "health_records")
	return result, s.finish(span, err)
}

func (s *Service) healthRecords(ctx context.Context, vc domain.ViewContext, req domain.HealthRequest, action, op string) (domain.HealthResult, error) {
	ids, err := s.resolveScope(ctx, vc, req.Selection, authorization.ObjectHealth, action, op)
	if err != nil {
		return domain.HealthResult{}, err
	}
	from, to, err := s.window(ctx, vc, req.From, req.To, op)
	if err != nil {
		return domain.HealthResult{}, err
	}
	records, err := s.scoring.List(ctx, scoring.ListFilter{StoreIDs: ids, From: from, To: to})
	if err != nil {
		return domain.HealthResult{}, err
	}
	if records == nil {
		records = []scoring.CompositeHealthRecord{}
	}
	return domain.HealthResult{StoreIDs: ids, From: from, To: to, Records: records}, nil
}

func (s *Service) DrillDown(ctx context.Context, vc domain.ViewContext, req domain.DrillDownRequest) (*domain.DrillDown, error) {
	ctx, span := s.start(ctx, "query.DrillDown", vc)
	defer span.End()

	if _, err := s.resolveScope(ctx, vc, domain.Selection{StoreIDs: []snowflake.ID{req.StoreID}},
		authorization.ObjectHealth, authorization.ActionDrillDown, "drilldown"); err != nil {
		return nil, s.finish(span, err)
	}
	if _, _, err := s.window(ctx, vc, req.Date, req.Date, "drilldown"); err != nil {
		return nil, s.finish(span, err)
	}
	out, err := s.drillDown(ctx, req, nil)
	return out, s.finish(span, err)
}

func (s *Service) DrillDownAlert(ctx context.Context, vc domain.ViewContext, storeID snowflake.ID, date time.Time, alert scoring.Alert) (*domain.DrillDown, error) {
	ctx, span := s.start(ctx, "query.DrillDownAlert", vc)
	defer span.End()

	if _, err := s.resolveScope(ctx, vc, domain.Selection{StoreIDs: []snowflake.ID{storeID}},
		authorization.ObjectHealth, authorization.ActionDrillDown, "drilldown_alert"); err != nil {
		return nil, s.finish(span, err)
	}
	if _, _, err := s.window(ctx, vc, date, date, "drilldown_alert"); err != nil {
		return nil, s.finish(span, err)
	}

	record, err := s.scoring.Get(ctx, storeID, date)
	if errors.Is(err, scoring.ErrRecordNotFound) {
		return nil, s.finish(span, fmt.Errorf("no health record for %s on %s: %w",
			storeID, clock.DateOf(date).Format(time.DateOnly), domain.ErrAlertNotFound))
	}
	if err != nil {
		return nil, s.finish(span, err)
	}
	if !record.HasAlert(alert.Domain, alert.Condition) {
		return nil, s.finish(span, fmt.Errorf("%s/%s: %w", alert.Domain, alert.Condition, domain.ErrAlertNotFound))
	}

	out, err := s.drillDown(ctx, domain.DrillDownRequest{StoreID: storeID, Date: date, Domain: alert.Domain}, record)
	return out, s.finish(span, err)
}

// drillDown returns the rows the persisted sub-score was computed from.
// record may be nil, in which case it is looked up. Without a record there is
// nothing to trace and the current rows for the date are returned.
func (s *Service) drillDown(ctx context.Context, req domain.DrillDownRequest, record *scoring.CompositeHealthRecord) (*domain.DrillDown, error) {
	if !req.Domain.Scored() {
		return nil, fmt.Errorf("drill-down domain %q: %w", req.Domain, healtherr.ErrInvalidRange)
	}
	if req.Date.IsZero() {
		return nil, fmt.Errorf("drill-down date is required: %w", healtherr.ErrInvalidRange)
	}
	date := clock.DateOf(req.Date)

	if record == nil {
		found, err := s.scoring.Get(ctx, req.StoreID, date)
		switch {
		case errors.Is(err, scoring.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			record = found
		}
	}

	in, err := s.loader.Load(ctx, req.Domain, req.StoreID, date, date)
	if err != nil {
		return nil, err
	}
	out := &domain.DrillDown{
		StoreID: req.StoreID,
		Date:    date,
		Domain:  req.Domain,
	}
	if record != nil {
		ids, err := s.scoring.Sources(ctx, req.StoreID, date, req.Domain)
		if err != nil {
			return nil, err
		}
		if in, err = scoredRows(in, req.Domain, ids); err != nil {
			return nil, err
		}
		out.SubScore = record.SubScore(req.Domain)
	}
	out.Theft, out.Rewards, out.Traffic, out.Employee = in.Theft, in.Rewards, in.Traffic, in.Employee
	return out, nil
}

// scoredRows narrows in to the rows recorded as d's sources. Rows ingested
// after scoring are dropped; a source that no longer loads makes the record
// stale.
func scoredRows(in normalizer.Inputs, d signal.Domain, ids []snowflake.ID) (normalizer.Inputs, error) {
	keep := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	var out normalizer.Inputs
	switch d {
	case signal.DomainTheft:
		out.Theft = filterRows(in.Theft, keep, func(r signal.TheftIncident) snowflake.ID { return r.ID })
	case signal.DomainRewards:
		out.Rewards = filterRows(in.Rewards, keep, func(r signal.RewardsSnapshot) snowflake.ID { return r.ID })
	case signal.DomainTraffic:
		out.Traffic = filterRows(in.Traffic, keep, func(r signal.TrafficSample) snowflake.ID { return r.ID })
	case signal.DomainEmployee:
		out.Employee = filterRows(in.Employee, keep, func(r signal.EmployeeSnapshot) snowflake.ID { return r.ID })
	}
	if n := out.Len(d); n != len(keep) {
		return normalizer.Inputs{}, fmt.Errorf("%s: %d of %d source records remain: %w", d, n, len(keep), scoring.ErrStaleRecord)
	}
	return out, nil
}

func filterRows[T any](rows []T, keep map[snowflake.ID]struct{}, id func(T) snowflake.ID) []T {
	out := make([]T, 0, len(keep))
	for _, r := range rows {
		if _, ok := keep[id(r)]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) Heatmap(ctx context.Context, vc domain.ViewContext, req domain.HeatmapRequest) (*heatmap.Grid, error) {
	ctx, span := s.start(ctx, "query.Heatmap", vc)
	defer span.End()

	ids, err := s.resolveScope(ctx, vc, req.Selection, authorization.ObjectHeatmap, authorization.ActionView, "heatmap")
	if err != nil {
		return nil, s.finish(span, err)
	}
	from, to, err := s.window(ctx, vc, req.From, req.To, "heatmap")
	if err != nil {
		return nil, s.finish(span, err)
	}
	grid, err := s.heatmap.Aggregate(ctx, heatmap.Request{
		Domain: req.Domain,
		Scope:  heatmapScope(req.Selection, ids),
		From:   from,
		To:     to,
	})
	return grid, s.finish(span, err)
}

func (s *Service) Correlation(ctx context.Context, vc domain.ViewContext, req domain.CorrelationRequest) (domain.CorrelationResult, error) {
	ctx, span := s.start(ctx, "query.Correlation", vc)
	defer span.End()

	ids, err := s.resolveScope(ctx, vc, req.Selection, authorization.ObjectHeatmap, authorization.ActionCompare, "correlation")
	if err != nil {
		return domain.CorrelationResult{}, s.finish(span, err)
	}
	from, to, err := s.window(ctx, vc, req.From, req.To, "correlation")
	if err != nil {
		return domain.CorrelationResult{}, s.finish(span, err)
	}
	corr, err := s.heatmap.Correlate(ctx, heatmap.CorrelateRequest{
		A:     req.A,
		B:     req.B,
		Scope: heatmapScope(req.Selection, ids),
		From:  from,
		To:    to,
	})
	if err != nil {
		return domain.CorrelationResult{}, s.finish(span, err)
	}
	return domain.CorrelationResult{Correlation: corr, Coefficient: corr.Pearson()}, nil
}

func (s *Service) RawSignals(ctx context.Context, vc domain.ViewContext, req domain.RawRequest) (domain.RawSignals, error) {
	ctx, span := s.start(ctx, "query.RawSignals", vc)
	defer span.End()

	out, err := s.rawSignals(ctx, vc, req)
	return out, s.finish(span, err)
}

func (s *Service) rawSignals(ctx context.Context, vc domain.ViewContext, req domain.RawRequest) (domain.RawSignals, error) {
	if !req.Domain.Valid() {
		return domain.RawSignals{}, fmt.Errorf("raw signal domain %q: %w", req.Domain, healtherr.ErrInvalidRange)
	}
	ids, err := s.resolveScope(ctx, vc, req.Selection, authorization.ObjectRawSignal, authorization.ActionView, "raw_signals")
	if err != nil {
		return domain.RawSignals{}, err
	}
	from, to, err := s.window(ctx, vc, req.From, req.To, "raw_signals")
	if err != nil {
		return domain.RawSignals{}, err
	}
	filter := signal.Filter{StoreIDs: ids, From: from, To: to, Severity: req.Severity, Resolved: req.Resolved}

	out := domain.RawSignals{Domain: req.Domain, StoreIDs: ids}
	switch req.Domain {
	case signal.DomainTheft:
		out.Theft, err = s.signals.TheftIncidents(ctx, filter)
	case signal.DomainRewards:
		out.Rewards, err = s.signals.RewardsSnapshots(ctx, filter)
	case signal.DomainTraffic:
		out.Traffic, err = s.signals.TrafficSamples(ctx, filter)
	case signal.DomainEmployee:
		out.Employee, err = s.signals.EmployeeSnapshots(ctx, filter)
	case signal.DomainCampaign:
		out.Campaign, err = s.signals.CampaignPerformance(ctx, filter)
	}
	if err != nil {
		return domain.RawSignals{}, err
	}
	return out, nil
}

func (s *Service) CompareStores(ctx context.Context, vc domain.ViewContext, a, b domain.HealthRequest) (domain.StoreComparison, error) {
	ctx, span := s.start(ctx, "query.CompareStores", vc)
	defer span.End()

	left, err := s.healthRecords(ctx, vc, a, authorization.ActionCompare, "compare_stores")
	if err != nil {
		return domain.StoreComparison{}, s.finish(span, err)
	}
	right, err := s.healthRecords(ctx, vc, b, authorization.ActionCompare, "compare_stores")
	if err != nil {
		return domain.StoreComparison{}, s.finish(span, err)
	}
	return domain.StoreComparison{A: left, B: right}, nil
}

// ComparePeriods returns req's window and the window of the same length
// ending the day before req.From.
func (s *Service) ComparePeriods(ctx context.Context, vc domain.ViewContext, req domain.HealthRequest) (domain.PeriodComparison, error) {
	ctx, span := s.start(ctx, "query.ComparePeriods", vc)
	defer span.End()

	current, err := s.healthRecords(ctx, vc, req, authorization.ActionCompare, "compare_periods")
	if err != nil {
		return domain.PeriodComparison{}, s.finish(span, err)
	}
	days := int(current.To.Sub(current.From).Hours()/24) + 1
	prev := req
	prev.To = current.From.AddDate(0, 0, -1)
	prev.From = current.From.AddDate(0, 0, -days)
	previous, err := s.healthRecords(ctx, vc, prev, authorization.ActionCompare, "compare_periods")
	if err != nil {
		return domain.PeriodComparison{}, s.finish(span, err)
	}
	return domain.PeriodComparison{Current: current, Previous: previous}, nil
}

func (s *Service) Summary(ctx context.Context, vc domain.ViewContext, req domain.SummaryRequest) (domain.Summary, error) {
	ctx, span := s.start(ctx, "query.Summary", vc)
	defer span.End()

	out, err := s.summary(ctx, vc, req)
	return out, s.finish(span, err)
}

func (s *Service) summary(ctx context.Context, vc domain.ViewContext, req domain.SummaryRequest) (domain.Summary, error) {
	ids, err := s.resolveScope(ctx, vc, req.Selection, authorization.ObjectSummary, authorization.ActionView, "summary")
	if err != nil {
		return domain.Summary{}, err
	}
	// Defaults stay inside the view window.
	if req.To.IsZero() {
		req.To = clock.Today(s.clock)
		if !vc.To.IsZero() && req.To.After(clock.DateOf(vc.To)) {
			req.To = clock.DateOf(vc.To)
		}
	}
	if req.From.IsZero() {
		req.From = clock.DateOf(req.To).AddDate(0, 0, -defaultSummaryDays)
		if !vc.From.IsZero() && req.From.Before(clock.DateOf(vc.From)) {
			req.From = clock.DateOf(vc.From)
		}
	}
	from, to, err := s.window(ctx, vc, req.From, req.To, "summary")
	if err != nil {
		return domain.Summary{}, err
	}
	filter := signal.Filter{StoreIDs: ids, From: from, To: to}

	incidents, err := s.signals.TheftIncidents(ctx, filter)
	if err != nil {
		return domain.Summary{}, err
	}
	rewards, err := s.signals.RewardsSnapshots(ctx, filter)
	if err != nil {
		return domain.Summary{}, err
	}
	records, err := s.scoring.List(ctx, scoring.ListFilter{StoreIDs: ids, From: from, To: to})
	if err != nil {
		return domain.Summary{}, err
	}

	out := domain.Summary{
		StoreIDs: ids,
		From:     from,
		To:       to,
		Days:     int(to.Sub(from).Hours() / 24),
		Health:   []domain.StoreHealth{},
	}

	out.Theft.TotalIncidents = len(incidents)
	for _, i := range incidents {
		if i.Resolved {
			out.Theft.ResolvedIncidents++
		}
	}
	if out.Theft.TotalIncidents > 0 {
		out.Theft.ResolutionRate = normalizer.Round(
			float64(out.Theft.ResolvedIncidents)/float64(out.Theft.TotalIncidents)*100, 4)
	}

	// Snapshots arrive ordered by store then time, so the last one seen per
	// store is that store's latest.
	latestMembers := make(map[snowflake.ID]int64, len(ids))
	for _, r := range rewards {
		latestMembers[r.StoreID] = r.TotalMembers
		out.Rewards.NewMembers += r.NewMembers
	}
	for _, n := range latestMembers {
		out.Rewards.TotalMembers += n
	}

	latest := make(map[snowflake.ID]scoring.CompositeHealthRecord, len(ids))
	for _, r := range records {
		if cur, ok := latest[r.StoreID]; !ok || r.Date.After(cur.Date) {
			latest[r.StoreID] = r
		}
	}
	for _, id := range ids {
		r, ok := latest[id]
		if !ok {
			continue
		}
		out.Health = append(out.Health, domain.StoreHealth{
			StoreID:   id,
			Date:      r.Date,
			Overall:   r.OverallScore,
			Band:      domain.BandFor(r.OverallScore),
			SubScores: r.SubScores(),
			Alerts:    len(r.Alerts),
		})
	}
	return out, nil
}

// resolveScope expands sel into concrete store ids and checks that vc may
// perform action on object over them. A manager asking for anything outside
// their assignment is rejected, never narrowed.
func (s *Service) resolveScope(ctx context.Context, vc domain.ViewContext, sel domain.Selection, object, action, op string) ([]snowflake.ID, error) {
	role := roleOf(vc)
	if !authorization.KnownRole(role) {
		return nil, s.violation(ctx, role, op, fmt.Errorf("role %q: %w", vc.Role, domain.ErrUnknownRole))
	}
	manager := role == authorization.RoleManager
	if manager && len(vc.StoreIDs) == 0 {
		return nil, s.violation(ctx, role, op, domain.ErrUnassignedManager)
	}

	set := 0
	if sel.All {
		set++
	}
	if len(sel.StoreIDs) > 0 {
		set++
	}
	if strings.TrimSpace(sel.Group) != "" {
		set++
	}
	switch set {
	case 0:
		return nil, domain.ErrEmptySelection
	case 1:
	default:
		return nil, domain.ErrAmbiguousSelection
	}

	var (
		ids []snowflake.ID
		err error
	)
	switch {
	case sel.All:
		if manager {
			return nil, s.violation(ctx, role, op, fmt.Errorf("manager requested all stores: %w", healtherr.ErrScopeViolation))
		}
		if err := s.authorize(ctx, role, authorization.ObjectStore, authorization.ActionView, op); err != nil {
			return nil, err
		}
		ids, err = s.stores.AllIDs(ctx)
	case len(sel.StoreIDs) > 0:
		ids = dedupe(sel.StoreIDs)
	default:
		ids, err = s.stores.ExpandGroup(ctx, sel.Group)
	}
	if err != nil {
		return nil, err
	}

	if manager {
		for _, id := range ids {
			if !slices.Contains(vc.StoreIDs, id) {
				return nil, s.violation(ctx, role, op, fmt.Errorf("store %s outside assignment: %w", id, healtherr.ErrScopeViolation))
			}
		}
	}
	if len(sel.StoreIDs) > 0 {
		if err := s.stores.ResolveIDs(ctx, ids); err != nil {
			return nil, err
		}
	}

	if err := s.authorize(ctx, role, object, action, op); err != nil {
		return nil, err
	}
	return ids, nil
}

// window validates [from, to] and checks it lies inside vc's date window. A
// request reaching past the window is rejected, never clipped.
func (s *Service) window(ctx context.Context, vc domain.ViewContext, from, to time.Time, op string) (time.Time, time.Time, error) {
	from, to, err := dateRange(from, to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !vc.From.IsZero() && !vc.To.IsZero() && clock.DateOf(vc.From).After(clock.DateOf(vc.To)) {
		return time.Time{}, time.Time{}, fmt.Errorf("view window %s after %s: %w",
			clock.DateOf(vc.From).Format(time.DateOnly), clock.DateOf(vc.To).Format(time.DateOnly), healtherr.ErrInvalidRange)
	}
	if (!vc.From.IsZero() && from.Before(clock.DateOf(vc.From))) || (!vc.To.IsZero() && to.After(clock.DateOf(vc.To))) {
		return time.Time{}, time.Time{}, s.violation(ctx, roleOf(vc), op, fmt.Errorf("%s..%s outside view window: %w",
			from.Format(time.DateOnly), to.Format(time.DateOnly), healtherr.ErrScopeViolation))
	}
	return from, to, nil
}

func (s *Service) authorize(ctx context.Context, role, object, action, op string) error {
	err := s.authz.Authorize(ctx, role, object, action)
	if errors.Is(err, authorization.ErrForbidden) {
		return s.violation(ctx, role, op, fmt.Errorf("%s %s on %s: %w", role, action, object, healtherr.ErrScopeViolation))
	}
	return err
}

func (s *Service) violation(ctx context.Context, role, op string, err error) error {
	s.metrics.RecordScopeViolation(ctx, role, op)
	logger.WithContext(ctx, s.log).Warn("scope violation",
		zap.String("operation", op),
		zap.String("role", role),
		zap.Error(err),
	)
	return err
}

func (s *Service) start(ctx context.Context, name string, vc domain.ViewContext) (context.Context, trace.Span) {
	if vc.Actor != "" {
		ctx = obscontext.WithActor(ctx, vc.Role, vc.Actor)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(tracing.SafeAttributes(
		attribute.String("role", vc.Role),
	)...))
}

func (s *Service) finish(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.SetAttributes(attribute.String("error_type", healtherr.Classify(err)))
	if !healtherr.IsTaxonomy(err) {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "query failed")
	}
	return err
}

func roleOf(vc domain.ViewContext) string {
	return strings.ToLower(strings.TrimSpace(vc.Role))
}

func dateRange(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("date range is required: %w", healtherr.ErrInvalidRange)
	}
	from, to = clock.DateOf(from), clock.DateOf(to)
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from %s after to %s: %w",
			from.Format(time.DateOnly), to.Format(time.DateOnly), healtherr.ErrInvalidRange)
	}
	return from, to, nil
}

func heatmapScope(sel domain.Selection, ids []snowflake.ID) heatmap.Scope {
	if sel.All {
		return heatmap.Scope{All: true}
	}
	return heatmap.Scope{StoreIDs: ids}
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
