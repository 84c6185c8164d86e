package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	heatmap "github.com/smallbiznis/storepulse/internal/heatmap/domain"
	scoring "github.com/smallbiznis/storepulse/internal/scoring/domain"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
)

// ViewContext identifies who is asking. It is built per request by the
// caller and never persisted. StoreIDs is the manager's assignment and is
// ignored for owner and admin. From and To bound the dates the context may
// read, inclusive; a zero value leaves that side open.
type ViewContext struct {
	Role     string
	Actor    string
	StoreIDs []snowflake.ID
	From     time.Time
	To       time.Time
}

// Selection names the stores a request covers. Exactly one of StoreIDs,
// Group or All should be set.
type Selection struct {
	StoreIDs []snowflake.ID `json:"store_ids,omitempty"`
	Group    string         `json:"group,omitempty"`
	All      bool           `json:"all,omitempty"`
}

type HealthRequest struct {
	Selection
	From time.Time
	To   time.Time
}

type HealthResult struct {
	StoreIDs []snowflake.ID                  `json:"store_ids"`
	From     time.Time                       `json:"from"`
	To       time.Time                       `json:"to"`
	Records  []scoring.CompositeHealthRecord `json:"records"`
}

type DrillDownRequest struct {
	StoreID snowflake.ID
	Date    time.Time
	Domain  signal.Domain
}

// DrillDown holds the raw rows behind one sub-score. Only the slice for
// Domain is populated.
type DrillDown struct {
	StoreID  snowflake.ID              `json:"store_id"`
	Date     time.Time                 `json:"date"`
	Domain   signal.Domain             `json:"domain"`
	SubScore *float64                  `json:"sub_score"`
	Theft    []signal.TheftIncident    `json:"theft,omitempty"`
	Rewards  []signal.RewardsSnapshot  `json:"rewards,omitempty"`
	Traffic  []signal.TrafficSample    `json:"traffic,omitempty"`
	Employee []signal.EmployeeSnapshot `json:"employee,omitempty"`
}

type HeatmapRequest struct {
	Selection
	Domain signal.Domain
	From   time.Time
	To     time.Time
}

type CorrelationRequest struct {
	Selection
	A    signal.Domain
	B    signal.Domain
	From time.Time
	To   time.Time
}

type CorrelationResult struct {
	*heatmap.Correlation
	Coefficient *float64 `json:"coefficient"`
}

type RawRequest struct {
	Selection
	Domain   signal.Domain
	From     time.Time
	To       time.Time
	Severity signal.Severity
	Resolved *bool
}

type RawSignals struct {
	Domain   signal.Domain                `json:"domain"`
	StoreIDs []snowflake.ID               `json:"store_ids"`
	Theft    []signal.TheftIncident       `json:"theft,omitempty"`
	Rewards  []signal.RewardsSnapshot     `json:"rewards,omitempty"`
	Traffic  []signal.TrafficSample       `json:"traffic,omitempty"`
	Employee []signal.EmployeeSnapshot    `json:"employee,omitempty"`
	Campaign []signal.CampaignPerformance `json:"campaign,omitempty"`
}

type StoreComparison struct {
	A HealthResult `json:"a"`
	B HealthResult `json:"b"`
}

type PeriodComparison struct {
	Current  HealthResult `json:"current"`
	Previous HealthResult `json:"previous"`
}

type SummaryRequest struct {
	Selection
	From time.Time
	To   time.Time
}

type Band string

const (
	BandGood      Band = "good"
	BandAttention Band = "attention"
	BandCritical  Band = "critical"
)

// BandFor maps an overall score to its dashboard band.
func BandFor(score float64) Band {
	switch {
	case score >= 70:
		return BandGood
	case score >= 40:
		return BandAttention
	default:
		return BandCritical
	}
}

type TheftSummary struct {
	TotalIncidents    int     `json:"total_incidents"`
	ResolvedIncidents int     `json:"resolved_incidents"`
	ResolutionRate    float64 `json:"resolution_rate"`
}

type RewardsSummary struct {
	TotalMembers int64 `json:"total_members"`
	NewMembers   int64 `json:"new_members"`
}

// StoreHealth is the most recent record for one store in the window.
type StoreHealth struct {
	StoreID   snowflake.ID              `json:"store_id"`
	Date      time.Time                 `json:"date"`
	Overall   float64                   `json:"overall"`
	Band      Band                      `json:"band"`
	SubScores map[signal.Domain]float64 `json:"sub_scores"`
	Alerts    int                       `json:"alerts"`
}

type Summary struct {
	StoreIDs []snowflake.ID `json:"store_ids"`
	From     time.Time      `json:"from"`
	To       time.Time      `json:"to"`
	Days     int            `json:"days"`
	Theft    TheftSummary   `json:"theft"`
	Rewards  RewardsSummary `json:"rewards"`
	Health   []StoreHealth  `json:"health"`
}
