package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/store/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO stores (id, code, name, address, city, state, zip_code, phone, manager, opening_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		store.ID,
		store.Code,
		store.Name,
		store.Address,
		store.City,
		store.State,
		store.ZipCode,
		store.Phone,
		store.Manager,
		store.OpeningDate,
		store.CreatedAt,
		store.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	return db.WithContext(ctx).Exec(
		`UPDATE stores
		 SET name = ?, address = ?, city = ?, state = ?, zip_code = ?, phone = ?, manager = ?, opening_date = ?, updated_at = ?
		 WHERE id = ?`,
		store.Name,
		store.Address,
		store.City,
		store.State,
		store.ZipCode,
		store.Phone,
		store.Manager,
		store.OpeningDate,
		store.UpdatedAt,
		store.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, address, city, state, zip_code, phone, manager, opening_date, created_at, updated_at
		 FROM stores WHERE id = ?`,
		id,
	).Scan(&store).Error
	if err != nil {
		return nil, err
	}
	if store.ID == 0 {
		return nil, nil
	}
	return &store, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, after snowflake.ID, limit int) ([]*domain.Store, error) {
	var stores []*domain.Store
	stmt := db.WithContext(ctx).Model(&domain.Store{})
	if after != 0 {
		stmt = stmt.Where("id > ?", after)
	}
	err := stmt.Order("id asc").Limit(limit).Find(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repo) ExistingIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]snowflake.ID, error) {
	var found []snowflake.ID
	if len(ids) == 0 {
		return found, nil
	}
	err := db.WithContext(ctx).Raw(`SELECT id FROM stores WHERE id IN ?`, ids).Scan(&found).Error
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *repo) ListIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(`SELECT id FROM stores ORDER BY id`).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) InsertGroup(ctx context.Context, db *gorm.DB, group *domain.StoreGroup, storeIDs []snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO store_groups (id, code, name, created_at) VALUES (?, ?, ?, ?)`,
			group.ID,
			group.Code,
			group.Name,
			group.CreatedAt,
		).Error; err != nil {
			return err
		}
		for _, storeID := range storeIDs {
			if err := tx.Exec(
				`INSERT INTO store_group_members (group_id, store_id) VALUES (?, ?)`,
				group.ID,
				storeID,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repo) FindGroupByCode(ctx context.Context, db *gorm.DB, code string) (*domain.StoreGroup, error) {
	var group domain.StoreGroup
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at FROM store_groups WHERE code = ?`,
		code,
	).Scan(&group).Error
	if err != nil {
		return nil, err
	}
	if group.ID == 0 {
		return nil, nil
	}
	return &group, nil
}

func (r *repo) GroupMembers(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT store_id FROM store_group_members WHERE group_id = ? ORDER BY store_id`,
		groupID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
