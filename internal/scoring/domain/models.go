package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/config"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	"gorm.io/datatypes"
)

type Condition string

const (
	ConditionBelowThreshold Condition = "below_threshold"
	ConditionDrop           Condition = "drop"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// CompositeHealthRecord is the persisted health score of one store on one
// date. Absent domains have a nil sub-score.
type CompositeHealthRecord struct {
	ID            snowflake.ID                             `gorm:"primaryKey" json:"id"`
	StoreID       snowflake.ID                             `gorm:"not null;uniqueIndex:ux_health_records_store_date" json:"store_id"`
	Date          time.Time                                `gorm:"not null;uniqueIndex:ux_health_records_store_date" json:"date"`
	TheftScore    *float64                                 `json:"theft_score"`
	RewardsScore  *float64                                 `json:"rewards_score"`
	TrafficScore  *float64                                 `json:"traffic_score"`
	EmployeeScore *float64                                 `json:"employee_score"`
	OverallScore  float64                                  `gorm:"not null" json:"overall_score"`
	Weights       datatypes.JSONType[config.DomainWeights] `gorm:"not null" json:"weights"`
	Fingerprint   string                                   `gorm:"not null" json:"fingerprint"`
	ComputedAt    time.Time                                `gorm:"not null" json:"computed_at"`
	Alerts        []Alert                                  `gorm:"-" json:"alerts"`
	Sources       []RecordSource                           `gorm:"-" json:"-"`
}

func (CompositeHealthRecord) TableName() string {
	return "health_records"
}

// SubScore returns d's sub-score, or nil when the domain had no data.
func (r CompositeHealthRecord) SubScore(d signal.Domain) *float64 {
	switch d {
	case signal.DomainTheft:
		return r.TheftScore
	case signal.DomainRewards:
		return r.RewardsScore
	case signal.DomainTraffic:
		return r.TrafficScore
	case signal.DomainEmployee:
		return r.EmployeeScore
	}
	return nil
}

// SubScores returns the present sub-scores keyed by domain.
func (r CompositeHealthRecord) SubScores() map[signal.Domain]float64 {
	out := make(map[signal.Domain]float64, len(signal.ScoredDomains))
	for _, d := range signal.ScoredDomains {
		if v := r.SubScore(d); v != nil {
			out[d] = *v
		}
	}
	return out
}

// HasAlert reports whether the record carries an alert for d and condition.
func (r CompositeHealthRecord) HasAlert(d signal.Domain, condition Condition) bool {
	for _, a := range r.Alerts {
		if a.Domain == d && a.Condition == condition {
			return true
		}
	}
	return false
}

type Alert struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"-"`
	StoreID   snowflake.ID  `gorm:"not null;uniqueIndex:ux_health_alerts_key" json:"-"`
	Date      time.Time     `gorm:"not null;uniqueIndex:ux_health_alerts_key" json:"-"`
	Domain    signal.Domain `gorm:"not null;uniqueIndex:ux_health_alerts_key" json:"domain"`
	Condition Condition     `gorm:"not null;uniqueIndex:ux_health_alerts_key" json:"condition"`
	Severity  AlertSeverity `gorm:"not null" json:"severity"`
	Message   string        `gorm:"not null" json:"message"`
	SubScore  float64       `gorm:"not null" json:"sub_score"`
	Reference float64       `gorm:"not null" json:"reference"`
}

func (Alert) TableName() string {
	return "health_alerts"
}

// RecordSource ties a health record's domain sub-score to one raw record it
// was computed from.
type RecordSource struct {
	StoreID  snowflake.ID  `gorm:"primaryKey;autoIncrement:false"`
	Date     time.Time     `gorm:"primaryKey"`
	Domain   signal.Domain `gorm:"primaryKey"`
	RecordID snowflake.ID  `gorm:"primaryKey;autoIncrement:false"`
}

func (RecordSource) TableName() string {
	return "health_record_sources"
}

func Models() []any {
	return []any{&CompositeHealthRecord{}, &Alert{}, &RecordSource{}}
}
