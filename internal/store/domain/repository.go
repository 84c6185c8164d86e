package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, store *Store) error
	Update(ctx context.Context, db *gorm.DB, store *Store) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Store, error)
	List(ctx context.Context, db *gorm.DB, after snowflake.ID, limit int) ([]*Store, error)
	ExistingIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]snowflake.ID, error)
	ListIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)

	InsertGroup(ctx context.Context, db *gorm.DB, group *StoreGroup, storeIDs []snowflake.ID) error
	FindGroupByCode(ctx context.Context, db *gorm.DB, code string) (*StoreGroup, error)
	GroupMembers(ctx context.Context, db *gorm.DB, groupID snowflake.ID) ([]snowflake.ID, error)
}
