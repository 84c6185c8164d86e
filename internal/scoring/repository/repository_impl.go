package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/scoring/domain"
	signal "github.com/smallbiznis/storepulse/internal/signal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRecord(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time) (*domain.CompositeHealthRecord, error) {
	var record domain.CompositeHealthRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, store_id, date, theft_score, rewards_score, traffic_score, employee_score,
		        overall_score, weights, fingerprint, computed_at
		 FROM health_records WHERE store_id = ? AND date = ?`,
		storeID,
		date,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	normalizeRecord(&record)
	return &record, nil
}

func (r *repo) UpsertRecord(ctx context.Context, db *gorm.DB, record *domain.CompositeHealthRecord) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"theft_score",
			"rewards_score",
			"traffic_score",
			"employee_score",
			"overall_score",
			"weights",
			"fingerprint",
			"computed_at",
		}),
	}).Create(record).Error
}

func (r *repo) ListRecords(ctx context.Context, db *gorm.DB, rng domain.RecordRange) ([]domain.CompositeHealthRecord, error) {
	stmt := db.WithContext(ctx).Model(&domain.CompositeHealthRecord{}).
		Where("date >= ? AND date < ?", rng.From, rng.Until)
	if len(rng.StoreIDs) > 0 {
		stmt = stmt.Where("store_id IN ?", rng.StoreIDs)
	}

	var records []domain.CompositeHealthRecord
	if err := stmt.Order("store_id, date").Find(&records).Error; err != nil {
		return nil, err
	}
	for i := range records {
		normalizeRecord(&records[i])
	}
	return records, nil
}

func (r *repo) ListAlerts(ctx context.Context, db *gorm.DB, rng domain.RecordRange) ([]domain.Alert, error) {
	stmt := db.WithContext(ctx).Model(&domain.Alert{}).
		Where("date >= ? AND date < ?", rng.From, rng.Until)
	if len(rng.StoreIDs) > 0 {
		stmt = stmt.Where("store_id IN ?", rng.StoreIDs)
	}

	var alerts []domain.Alert
	if err := stmt.Order("store_id, date, id").Find(&alerts).Error; err != nil {
		return nil, err
	}
	for i := range alerts {
		alerts[i].Date = alerts[i].Date.UTC()
	}
	return alerts, nil
}

func (r *repo) ReplaceAlerts(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time, alerts []domain.Alert) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM health_alerts WHERE store_id = ? AND date = ?`,
		storeID,
		date,
	).Error; err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&alerts).Error
}

func (r *repo) ListSources(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time, d signal.Domain) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Model(&domain.RecordSource{}).
		Where("store_id = ? AND date = ? AND domain = ?", storeID, date, d).
		Order("record_id").
		Pluck("record_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ReplaceSources(ctx context.Context, db *gorm.DB, storeID snowflake.ID, date time.Time, sources []domain.RecordSource) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM health_record_sources WHERE store_id = ? AND date = ?`,
		storeID,
		date,
	).Error; err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(&sources, 500).Error
}

// Drivers differ in the zone they attach to scanned timestamps.
func normalizeRecord(record *domain.CompositeHealthRecord) {
	record.Date = record.Date.UTC()
	record.ComputedAt = record.ComputedAt.UTC()
}
