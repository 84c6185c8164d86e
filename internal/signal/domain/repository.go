package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Range is a half-open [From, Until) window in UTC.
type Range struct {
	StoreIDs []snowflake.ID
	From     time.Time
	Until    time.Time
	Severity Severity
	Resolved *bool
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record any) error

	ListTheft(ctx context.Context, db *gorm.DB, r Range) ([]TheftIncident, error)
	ListRewards(ctx context.Context, db *gorm.DB, r Range) ([]RewardsSnapshot, error)
	ListTraffic(ctx context.Context, db *gorm.DB, r Range) ([]TrafficSample, error)
	ListEmployee(ctx context.Context, db *gorm.DB, r Range) ([]EmployeeSnapshot, error)
	ListCampaign(ctx context.Context, db *gorm.DB, r Range) ([]CampaignPerformance, error)

	FindIncident(ctx context.Context, db *gorm.DB, storeID, id snowflake.ID) (*TheftIncident, error)
	MarkResolved(ctx context.Context, db *gorm.DB, storeID, id snowflake.ID, at time.Time) error

	// DeleteBefore removes the domain's rows for storeID older than before and
	// returns the number deleted.
	DeleteBefore(ctx context.Context, db *gorm.DB, d Domain, storeID snowflake.ID, before time.Time) (int64, error)
}
