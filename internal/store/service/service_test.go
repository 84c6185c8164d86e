package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/healtherr"
	"github.com/smallbiznis/storepulse/internal/store/domain"
	"github.com/smallbiznis/storepulse/internal/store/repository"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var createdAt = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return newTestServiceWithClock(t, clock.NewFakeClock(createdAt))
}

func newTestServiceWithClock(t *testing.T, c clock.Clock) domain.Service {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Store{}, &domain.StoreGroup{}, &domain.StoreGroupMember{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: c,
		Repo:  repository.Provide(),
	})
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	store, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "  Downtown Market ", City: "Austin"})
	require.NoError(t, err)
	assert.Equal(t, "downtown-market", store.Code)
	assert.Equal(t, "Downtown Market", store.Name)

	got, err := svc.Get(ctx, store.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ID, got.ID)
	assert.Equal(t, "Austin", got.City)
}

func TestCreateRejectsBlankName(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), domain.CreateStoreRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestCreateDuplicateCode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "Main St"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateStoreRequest{Name: "main st"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestGetUnknownIsUnknownStore(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, err, healtherr.ErrUnknownStore)
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	store, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "North", City: "Dallas", Manager: "Ana"})
	require.NoError(t, err)

	manager := "Ben"
	updated, err := svc.Update(ctx, domain.UpdateStoreRequest{ID: store.ID, Manager: &manager})
	require.NoError(t, err)
	assert.Equal(t, "Ben", updated.Manager)
	assert.Equal(t, "Dallas", updated.City)
	assert.Equal(t, "north", updated.Code)

	blank := " "
	_, err = svc.Update(ctx, domain.UpdateStoreRequest{ID: store.ID, Name: &blank})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestTimestampsFollowClock(t *testing.T) {
	fake := clock.NewFakeClock(createdAt)
	svc := newTestServiceWithClock(t, fake)
	ctx := context.Background()

	store, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "Harbor"})
	require.NoError(t, err)
	assert.True(t, store.CreatedAt.Equal(createdAt))
	assert.True(t, store.UpdatedAt.Equal(createdAt))

	fake.Advance(26 * time.Hour)
	city := "Galveston"
	updated, err := svc.Update(ctx, domain.UpdateStoreRequest{ID: store.ID, City: &city})
	require.NoError(t, err)
	assert.True(t, updated.CreatedAt.Equal(createdAt))
	assert.True(t, updated.UpdatedAt.Equal(createdAt.Add(26*time.Hour)))

	group, err := svc.CreateGroup(ctx, domain.CreateGroupRequest{Name: "Coast", StoreIDs: []snowflake.ID{store.ID}})
	require.NoError(t, err)
	assert.True(t, group.CreatedAt.Equal(createdAt.Add(26*time.Hour)))
}

func TestListPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	names := []string{"A", "B", "C", "D", "E"}
	for _, name := range names {
		_, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "Store " + name})
		require.NoError(t, err)
	}

	first, err := svc.List(ctx, domain.ListStoreRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Stores, 2)
	assert.True(t, first.HasMore)

	var all []domain.Store
	all = append(all, first.Stores...)
	token := first.NextPageToken
	for token != "" {
		page, err := svc.List(ctx, domain.ListStoreRequest{PageSize: 2, PageToken: token})
		require.NoError(t, err)
		all = append(all, page.Stores...)
		token = page.NextPageToken
	}
	require.Len(t, all, len(names))
	for i := 1; i < len(all); i++ {
		assert.Less(t, int64(all[i-1].ID), int64(all[i].ID))
	}

	_, err = svc.List(ctx, domain.ListStoreRequest{PageToken: "%%%"})
	assert.Error(t, err)
}

func TestResolveIDs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.ResolveIDs(ctx, []snowflake.ID{a.ID}))

	err = svc.ResolveIDs(ctx, []snowflake.ID{a.ID, 99})
	assert.True(t, errors.Is(err, healtherr.ErrUnknownStore))

	ok, err := svc.Exists(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroups(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "A"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, domain.CreateStoreRequest{Name: "B"})
	require.NoError(t, err)

	group, err := svc.CreateGroup(ctx, domain.CreateGroupRequest{
		Name:     "Texas Region",
		StoreIDs: []snowflake.ID{b.ID, a.ID, b.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "texas-region", group.Code)

	ids, err := svc.ExpandGroup(ctx, "Texas Region")
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{a.ID, b.ID}, ids)

	_, err = svc.ExpandGroup(ctx, "nowhere")
	assert.ErrorIs(t, err, domain.ErrInvalidGroup)

	_, err = svc.CreateGroup(ctx, domain.CreateGroupRequest{Name: "Ghosts", StoreIDs: []snowflake.ID{12345}})
	assert.ErrorIs(t, err, healtherr.ErrUnknownStore)

	_, err = svc.CreateGroup(ctx, domain.CreateGroupRequest{Name: "Empty"})
	assert.ErrorIs(t, err, domain.ErrInvalidGroup)
}
