package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Store struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"not null;uniqueIndex" json:"code"`
	Name        string       `gorm:"not null" json:"name"`
	Address     string       `json:"address,omitempty"`
	City        string       `json:"city,omitempty"`
	State       string       `json:"state,omitempty"`
	ZipCode     string       `json:"zip_code,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Manager     string       `json:"manager,omitempty"`
	OpeningDate *time.Time   `json:"opening_date,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

type StoreGroup struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"not null;uniqueIndex" json:"code"`
	Name      string       `gorm:"not null" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

type StoreGroupMember struct {
	GroupID snowflake.ID `gorm:"primaryKey" json:"group_id"`
	StoreID snowflake.ID `gorm:"primaryKey;index" json:"store_id"`
}
