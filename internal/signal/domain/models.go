package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Domain tags one of the raw signal families.
type Domain string

const (
	DomainTheft    Domain = "theft"
	DomainRewards  Domain = "rewards"
	DomainTraffic  Domain = "traffic"
	DomainEmployee Domain = "employee"
	// DomainCampaign is listed in drill-downs but never scored.
	DomainCampaign Domain = "campaign"
)

// ScoredDomains is the fixed evaluation and presentation order.
var ScoredDomains = []Domain{DomainTheft, DomainRewards, DomainTraffic, DomainEmployee}

func (d Domain) Valid() bool {
	switch d {
	case DomainTheft, DomainRewards, DomainTraffic, DomainEmployee, DomainCampaign:
		return true
	}
	return false
}

func (d Domain) Scored() bool {
	return d.Valid() && d != DomainCampaign
}

// Order returns d's position in ScoredDomains, or len(ScoredDomains).
func (d Domain) Order() int {
	for i, candidate := range ScoredDomains {
		if candidate == d {
			return i
		}
	}
	return len(ScoredDomains)
}

type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

type TheftIncident struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID     snowflake.ID `gorm:"not null;index:idx_theft_store_time" json:"store_id"`
	OccurredAt  time.Time    `gorm:"not null;index:idx_theft_store_time" json:"occurred_at"`
	Hour        int          `gorm:"not null" json:"hour"`
	DayOfWeek   int          `gorm:"not null" json:"day_of_week"`
	Severity    Severity     `gorm:"not null" json:"severity"`
	Value       float64      `gorm:"not null" json:"value"`
	Resolved    bool         `gorm:"not null" json:"resolved"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	EvidenceRef string       `json:"evidence_ref,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

type RewardsSnapshot struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID         snowflake.ID `gorm:"not null;index:idx_rewards_store_date" json:"store_id"`
	Date            time.Time    `gorm:"not null;index:idx_rewards_store_date" json:"date"`
	RecordedHour    int          `gorm:"not null" json:"recorded_hour"`
	TotalMembers    int64        `gorm:"not null" json:"total_members"`
	NewMembers      int64        `gorm:"not null" json:"new_members"`
	EngagementPct   float64      `gorm:"not null" json:"engagement_pct"`
	ActiveCampaigns int          `gorm:"not null" json:"active_campaigns"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
}

type TrafficSample struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID       snowflake.ID `gorm:"not null;index:idx_traffic_store_date" json:"store_id"`
	Date          time.Time    `gorm:"not null;index:idx_traffic_store_date" json:"date"`
	Hour          int          `gorm:"not null" json:"hour"`
	VisitorCount  int64        `gorm:"not null" json:"visitor_count"`
	ConversionPct float64      `gorm:"not null" json:"conversion_pct"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

type EmployeeSnapshot struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID              snowflake.ID `gorm:"not null;index:idx_employee_store_date" json:"store_id"`
	Date                 time.Time    `gorm:"not null;index:idx_employee_store_date" json:"date"`
	RecordedHour         int          `gorm:"not null" json:"recorded_hour"`
	Shift                string       `json:"shift,omitempty"`
	ProductivityPct      float64      `gorm:"not null" json:"productivity_pct"`
	AttendancePct        float64      `gorm:"not null" json:"attendance_pct"`
	TrainingPct          float64      `gorm:"not null" json:"training_pct"`
	SatisfactionPct      float64      `gorm:"not null" json:"satisfaction_pct"`
	MobileUsageIncidents int          `gorm:"not null" json:"mobile_usage_incidents"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
}

// Mean is the unweighted mean of the four percentages.
func (e EmployeeSnapshot) Mean() float64 {
	return (e.ProductivityPct + e.AttendancePct + e.TrainingPct + e.SatisfactionPct) / 4
}

type CampaignPerformance struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID          snowflake.ID `gorm:"not null;index:idx_campaign_store_date" json:"store_id"`
	Date             time.Time    `gorm:"not null;index:idx_campaign_store_date" json:"date"`
	Campaign         string       `gorm:"not null" json:"campaign"`
	ParticipationPct float64      `gorm:"not null" json:"participation_pct"`
	RedemptionPct    float64      `gorm:"not null" json:"redemption_pct"`
	ROI              float64      `gorm:"column:roi;not null" json:"roi"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
}

func (CampaignPerformance) TableName() string {
	return "campaign_performance"
}

// Models lists every raw signal table, for migrations and tests.
func Models() []any {
	return []any{
		&TheftIncident{},
		&RewardsSnapshot{},
		&TrafficSample{},
		&EmployeeSnapshot{},
		&CampaignPerformance{},
	}
}
