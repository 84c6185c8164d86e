package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleCapabilities(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		role    string
		object  string
		action  string
		wantErr error
	}{
		{RoleManager, ObjectHealth, ActionView, nil},
		{RoleManager, ObjectHealth, ActionDrillDown, nil},
		{RoleManager, ObjectHeatmap, ActionView, nil},
		{RoleManager, ObjectHeatmap, ActionCompare, nil},
		{RoleManager, ObjectStore, ActionView, ErrForbidden},
		{RoleAdmin, ObjectStore, ActionView, nil},
		{RoleAdmin, ObjectHeatmap, ActionCompare, nil},
		{RoleAdmin, ObjectSummary, ActionView, nil},
		{RoleOwner, ObjectRawSignal, ActionView, nil},
		{RoleOwner, ObjectStore, ActionView, nil},
		{"Owner ", ObjectHealth, ActionView, nil},
		{"cashier", ObjectHealth, ActionView, ErrInvalidRole},
		{RoleOwner, "", ActionView, ErrInvalidObject},
		{RoleOwner, ObjectHealth, "", ErrInvalidAction},
		{RoleOwner, ObjectHealth, "delete", ErrForbidden},
	}
	for _, tc := range cases {
		err := svc.Authorize(ctx, tc.role, tc.object, tc.action)
		if tc.wantErr == nil {
			require.NoError(t, err, "%s %s %s", tc.role, tc.object, tc.action)
			continue
		}
		require.ErrorIs(t, err, tc.wantErr, "%s %s %s", tc.role, tc.object, tc.action)
	}
}

func TestNewEnforcerIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	_, err = NewEnforcer(conn)
	require.NoError(t, err)
	enforcer, err := NewEnforcer(conn)
	require.NoError(t, err)

	policies, err := enforcer.GetPolicy()
	require.NoError(t, err)
	require.Len(t, policies, 8)
}
