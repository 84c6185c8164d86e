package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/signal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// table, time column and ordering per domain.
var layouts = map[domain.Domain]struct {
	table   string
	timeCol string
	order   string
}{
	domain.DomainTheft:    {"theft_incidents", "occurred_at", "store_id, occurred_at, id"},
	domain.DomainRewards:  {"rewards_snapshots", "date", "store_id, date, recorded_hour, id"},
	domain.DomainTraffic:  {"traffic_samples", "date", "store_id, date, hour, id"},
	domain.DomainEmployee: {"employee_snapshots", "date", "store_id, date, recorded_hour, id"},
	domain.DomainCampaign: {"campaign_performance", "date", "store_id, date, id"},
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record any) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) scoped(ctx context.Context, db *gorm.DB, d domain.Domain, rng domain.Range) *gorm.DB {
	layout := layouts[d]
	stmt := db.WithContext(ctx).Table(layout.table).
		Where(layout.timeCol+" >= ? AND "+layout.timeCol+" < ?", rng.From, rng.Until)
	if len(rng.StoreIDs) > 0 {
		stmt = stmt.Where("store_id IN ?", rng.StoreIDs)
	}
	return stmt.Order(layout.order)
}

func (r *repo) ListTheft(ctx context.Context, db *gorm.DB, rng domain.Range) ([]domain.TheftIncident, error) {
	stmt := r.scoped(ctx, db, domain.DomainTheft, rng)
	if rng.Severity != "" {
		stmt = stmt.Where("severity = ?", rng.Severity)
	}
	if rng.Resolved != nil {
		stmt = stmt.Where("resolved = ?", *rng.Resolved)
	}
	var out []domain.TheftIncident
	if err := stmt.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListRewards(ctx context.Context, db *gorm.DB, rng domain.Range) ([]domain.RewardsSnapshot, error) {
	var out []domain.RewardsSnapshot
	if err := r.scoped(ctx, db, domain.DomainRewards, rng).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListTraffic(ctx context.Context, db *gorm.DB, rng domain.Range) ([]domain.TrafficSample, error) {
	var out []domain.TrafficSample
	if err := r.scoped(ctx, db, domain.DomainTraffic, rng).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListEmployee(ctx context.Context, db *gorm.DB, rng domain.Range) ([]domain.EmployeeSnapshot, error) {
	var out []domain.EmployeeSnapshot
	if err := r.scoped(ctx, db, domain.DomainEmployee, rng).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ListCampaign(ctx context.Context, db *gorm.DB, rng domain.Range) ([]domain.CampaignPerformance, error) {
	var out []domain.CampaignPerformance
	if err := r.scoped(ctx, db, domain.DomainCampaign, rng).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) FindIncident(ctx context.Context, db *gorm.DB, storeID, id snowflake.ID) (*domain.TheftIncident, error) {
	var incident domain.TheftIncident
	err := db.WithContext(ctx).Raw(
		`SELECT id, store_id, occurred_at, hour, day_of_week, severity, value, resolved, resolved_at, evidence_ref, created_at
		 FROM theft_incidents WHERE store_id = ? AND id = ?`,
		storeID,
		id,
	).Scan(&incident).Error
	if err != nil {
		return nil, err
	}
	if incident.ID == 0 {
		return nil, nil
	}
	return &incident, nil
}

func (r *repo) MarkResolved(ctx context.Context, db *gorm.DB, storeID, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE theft_incidents SET resolved = ?, resolved_at = ?
		 WHERE store_id = ? AND id = ? AND resolved_at IS NULL`,
		true,
		at,
		storeID,
		id,
	).Error
}

func (r *repo) DeleteBefore(ctx context.Context, db *gorm.DB, d domain.Domain, storeID snowflake.ID, before time.Time) (int64, error) {
	layout, ok := layouts[d]
	if !ok {
		return 0, fmt.Errorf("unknown signal domain %q", d)
	}
	res := db.WithContext(ctx).Exec(
		`DELETE FROM `+layout.table+` WHERE store_id = ? AND `+layout.timeCol+` < ?`,
		storeID,
		before,
	)
	return res.RowsAffected, res.Error
}
