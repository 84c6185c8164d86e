package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/store/domain"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/smallbiznis/storepulse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("store.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateStoreRequest) (*domain.Store, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	code := slug.Make(strings.TrimSpace(req.Code))
	if code == "" {
		code = slug.Make(name)
	}
	if code == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now().UTC()
	store := &domain.Store{
		ID:          s.genID.Generate(),
		Code:        code,
		Name:        name,
		Address:     strings.TrimSpace(req.Address),
		City:        strings.TrimSpace(req.City),
		State:       strings.TrimSpace(req.State),
		ZipCode:     strings.TrimSpace(req.ZipCode),
		Phone:       strings.TrimSpace(req.Phone),
		Manager:     strings.TrimSpace(req.Manager),
		OpeningDate: utcDate(req.OpeningDate),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Insert(ctx, s.db, store); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicate
		}
		return nil, err
	}

	s.log.Info("store created", zap.String("store_id", store.ID.String()), zap.String("code", store.Code))
	return store, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Store, error) {
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListStoreRequest) (domain.ListStoreResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListStoreResponse{}, err
	}

	var after snowflake.ID
	if cursor != nil {
		after, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListStoreResponse{}, pagination.ErrInvalidPageToken
		}
	}

	limit := page.Limit()
	items, err := s.repo.List(ctx, s.db, after, limit+1)
	if err != nil {
		return domain.ListStoreResponse{}, err
	}

	items, info, err := pagination.Page(items, limit, func(store *domain.Store) pagination.Cursor {
		return pagination.Cursor{ID: store.ID.String()}
	})
	if err != nil {
		return domain.ListStoreResponse{}, err
	}

	stores := make([]domain.Store, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		stores = append(stores, *item)
	}
	return domain.ListStoreResponse{PageInfo: info, Stores: stores}, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateStoreRequest) (*domain.Store, error) {
	store, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		store.Name = name
	}
	assign(&store.Address, req.Address)
	assign(&store.City, req.City)
	assign(&store.State, req.State)
	assign(&store.ZipCode, req.ZipCode)
	assign(&store.Phone, req.Phone)
	assign(&store.Manager, req.Manager)
	if req.OpeningDate != nil {
		store.OpeningDate = utcDate(req.OpeningDate)
	}
	store.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, s.db, store); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Service) Exists(ctx context.Context, id snowflake.ID) (bool, error) {
	if id == 0 {
		return false, nil
	}
	found, err := s.repo.ExistingIDs(ctx, s.db, []snowflake.ID{id})
	if err != nil {
		return false, err
	}
	return len(found) == 1, nil
}

func (s *Service) ResolveIDs(ctx context.Context, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.repo.ExistingIDs(ctx, s.db, ids)
	if err != nil {
		return err
	}
	known := make(map[snowflake.ID]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("store %s: %w", id, healtherr.ErrUnknownStore)
		}
	}
	return nil
}

func (s *Service) AllIDs(ctx context.Context) ([]snowflake.ID, error) {
	return s.repo.ListIDs(ctx, s.db)
}

func (s *Service) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (*domain.StoreGroup, error) {
	name := strings.TrimSpace(req.Name)
	code := slug.Make(name)
	if code == "" {
		return nil, domain.ErrInvalidName
	}

	members := dedupe(req.StoreIDs)
	if len(members) == 0 {
		return nil, domain.ErrInvalidGroup
	}
	if err := s.ResolveIDs(ctx, members); err != nil {
		return nil, err
	}

	group := &domain.StoreGroup{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.InsertGroup(ctx, s.db, group, members); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicate
		}
		return nil, err
	}
	return group, nil
}

func (s *Service) ExpandGroup(ctx context.Context, code string) ([]snowflake.ID, error) {
	code = slug.Make(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrInvalidGroup
	}
	group, err := s.repo.FindGroupByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("group %q: %w", code, domain.ErrInvalidGroup)
	}
	return s.repo.GroupMembers(ctx, s.db, group.ID)
}

func assign(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func utcDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := clock.DateOf(*t)
	return &d
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

