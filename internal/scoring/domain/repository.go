package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	"gorm.io/gorm"
)

// RecordRange is a half-open [From, Until) window of record dates.
type RecordRange struct {
	StoreIDs []snowflake.ID
	From     time.Time
	Until    time.Time
}

type Repository interface {
	FindRecord(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time) (*CompositeHealthRecord, error)
	UpsertRecord(ctx context.Context, db *gorm.DB, record *CompositeHealthRecord) error
	ListRecords(ctx context.Context, db *gorm.DB, r RecordRange) ([]CompositeHealthRecord, error)

	ListAlerts(ctx context.Context, db *gorm.DB, r RecordRange) ([]Alert, error)
	ReplaceAlerts(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time, alerts []Alert) error

	ListSources(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time, d signal.Domain) ([]snowflake.ID, error)
	ReplaceSources(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time, sources []RecordSource) error
}
