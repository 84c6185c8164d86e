package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
)

type ListFilter struct {
	StoreIDs []snowflake.ID
	From     time.Time
	To       time.Time
}

// RangeResult lists the records scored over a range. Written and Unchanged
// split Records by whether the stored row was rewritten.
type RangeResult struct {
	Records   []CompositeHealthRecord `json:"records"`
	Skipped   []time.Time             `json:"skipped"`
	Written   int                     `json:"written"`
	Unchanged int                     `json:"unchanged"`
}

type Service interface {
	// Score computes and persists the record for storeID on date.
	Score(ctx context.Context, storeID snowflake.ID, date time.Time) (*CompositeHealthRecord, error)
	ScoreRange(ctx context.Context, storeID snowflake.ID, from, to time.Time) (RangeResult, error)

	Get(ctx context.Context, storeID snowflake.ID, date time.Time) (*CompositeHealthRecord, error)
	List(ctx context.Context, filter ListFilter) ([]CompositeHealthRecord, error)

	// Sources returns the ids of the raw records d's sub-score was computed
	// from, in ascending order.
	Sources(ctx context.Context, storeID snowflake.ID, date time.Time, d signal.Domain) ([]snowflake.ID, error)
}

var (
	ErrRecordNotFound = errors.New("health_record_not_found")
	// ErrStaleRecord reports that raw records a persisted score was computed
	// from no longer exist.
	ErrStaleRecord = errors.New("health_record_stale")
)
