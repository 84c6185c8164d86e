package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/pkg/db/pagination"
)

type CreateStoreRequest struct {
	Name        string
	Code        string
	Address     string
	City        string
	State       string
	ZipCode     string
	Phone       string
	Manager     string
	OpeningDate *time.Time
}

// UpdateStoreRequest applies administrative edits. Nil fields are left as is.
type UpdateStoreRequest struct {
	ID          snowflake.ID
	Name        *string
	Address     *string
	City        *string
	State       *string
	ZipCode     *string
	Phone       *string
	Manager     *string
	OpeningDate *time.Time
}

type ListStoreRequest struct {
	PageToken string
	PageSize  int
}

type ListStoreResponse struct {
	pagination.PageInfo
	Stores []Store `json:"stores"`
}

type CreateGroupRequest struct {
	Name     string
	StoreIDs []snowflake.ID
}

type Service interface {
	Create(context.Context, CreateStoreRequest) (*Store, error)
	Get(context.Context, snowflake.ID) (*Store, error)
	List(context.Context, ListStoreRequest) (ListStoreResponse, error)
	Update(context.Context, UpdateStoreRequest) (*Store, error)

	Exists(context.Context, snowflake.ID) (bool, error)
	// ResolveIDs fails with healtherr.ErrUnknownStore on the first id that
	// does not exist.
	ResolveIDs(context.Context, []snowflake.ID) error
	AllIDs(context.Context) ([]snowflake.ID, error)

	CreateGroup(context.Context, CreateGroupRequest) (*StoreGroup, error)
	ExpandGroup(ctx context.Context, code string) ([]snowflake.ID, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidGroup = errors.New("invalid_group")
	ErrDuplicate    = errors.New("duplicate_code")
	ErrNotFound     = fmt.Errorf("not_found: %w", healtherr.ErrUnknownStore)
)
