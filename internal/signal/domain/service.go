package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type TheftIncidentInput struct {
	StoreID     snowflake.ID
	OccurredAt  time.Time
	Severity    Severity
	Value       float64
	Resolved    bool
	EvidenceRef string
}

type RewardsSnapshotInput struct {
	StoreID         snowflake.ID
	Date            time.Time
	RecordedHour    int
	TotalMembers    int64
	NewMembers      int64
	EngagementPct   float64
	ActiveCampaigns int
}

type TrafficSampleInput struct {
	StoreID       snowflake.ID
	Date          time.Time
	Hour          int
	VisitorCount  int64
	ConversionPct float64
}

type EmployeeSnapshotInput struct {
	StoreID              snowflake.ID
	Date                 time.Time
	RecordedHour         int
	Shift                string
	ProductivityPct      float64
	AttendancePct        float64
	TrainingPct          float64
	SatisfactionPct      float64
	MobileUsageIncidents int
}

type CampaignPerformanceInput struct {
	StoreID          snowflake.ID
	Date             time.Time
	Campaign         string
	ParticipationPct float64
	RedemptionPct    float64
	ROI              float64
}

// Filter selects raw records by store and inclusive calendar dates. An empty
// StoreIDs means every store.
type Filter struct {
	StoreIDs []snowflake.ID
	From     time.Time
	To       time.Time
	Severity Severity
	Resolved *bool
}

type PurgeResult struct {
	Deleted map[Domain]int64 `json:"deleted"`
}

type Service interface {
	RecordTheftIncident(context.Context, TheftIncidentInput) (*TheftIncident, error)
	RecordRewardsSnapshot(context.Context, RewardsSnapshotInput) (*RewardsSnapshot, error)
	RecordTrafficSample(context.Context, TrafficSampleInput) (*TrafficSample, error)
	RecordEmployeeSnapshot(context.Context, EmployeeSnapshotInput) (*EmployeeSnapshot, error)
	RecordCampaignPerformance(context.Context, CampaignPerformanceInput) (*CampaignPerformance, error)

	ResolveIncident(ctx context.Context, storeID, incidentID snowflake.ID) (*TheftIncident, error)

	TheftIncidents(context.Context, Filter) ([]TheftIncident, error)
	RewardsSnapshots(context.Context, Filter) ([]RewardsSnapshot, error)
	TrafficSamples(context.Context, Filter) ([]TrafficSample, error)
	EmployeeSnapshots(context.Context, Filter) ([]EmployeeSnapshot, error)
	CampaignPerformance(context.Context, Filter) ([]CampaignPerformance, error)

	Purge(ctx context.Context, storeID snowflake.ID, before time.Time) (PurgeResult, error)
}

var (
	ErrIncidentNotFound = errors.New("incident_not_found")
	ErrInvalidCampaign  = errors.New("invalid_campaign")
)
