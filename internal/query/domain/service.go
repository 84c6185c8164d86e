package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	heatmap "github.com/smallbiznis/storepulse/internal/heatmap/domain"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
)

// Service composes role-scoped views over stored health records and raw
// signals. Every call re-reads stored data; nothing is cached between calls.
type Service interface {
	HealthRecords(context.Context, ViewContext, HealthRequest) (HealthResult, error)
	DrillDown(context.Context, ViewContext, DrillDownRequest) (*DrillDown, error)
	DrillDownAlert(ctx context.Context, vc ViewContext, storeID snowflake.ID, date time.Time, alert scoring.Alert) (*DrillDown, error)
	Heatmap(context.Context, ViewContext, HeatmapRequest) (*heatmap.Grid, error)
	Correlation(context.Context, ViewContext, CorrelationRequest) (CorrelationResult, error)
	RawSignals(context.Context, ViewContext, RawRequest) (RawSignals, error)
	CompareStores(ctx context.Context, vc ViewContext, a, b HealthRequest) (StoreComparison, error)
	ComparePeriods(context.Context, ViewContext, HealthRequest) (PeriodComparison, error)
	Summary(context.Context, ViewContext, SummaryRequest) (Summary, error)
}

var (
	ErrAlertNotFound      = errors.New("alert_not_found")
	ErrUnknownRole        = fmt.Errorf("unknown_role: %w", healtherr.ErrScopeViolation)
	ErrUnassignedManager  = fmt.Errorf("manager_without_stores: %w", healtherr.ErrScopeViolation)
	ErrEmptySelection     = fmt.Errorf("empty_selection: %w", healtherr.ErrInvalidRange)
	ErrAmbiguousSelection = fmt.Errorf("ambiguous_selection: %w", healtherr.ErrInvalidRange)
)
