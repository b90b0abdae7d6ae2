package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/database/testutil"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

func newTestIdentityService(t *testing.T) (*IdentityService, *gorm.DB, cache.Store) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	svc, err := NewIdentityService(db, store, time.Minute)
	require.NoError(t, err)
	return svc, db, store
}

func seedPrincipal(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	scope := models.DataScope{Name: "engineering", Status: models.StatusEnabled}
	require.NoError(t, db.Create(&scope).Error)

	role := models.Role{Name: "engineer", Status: models.StatusEnabled, IsFilterScopes: true}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Model(&role).Association("Scopes").Append(&scope))

	user := models.User{Username: "alice", Password: "x", Status: models.StatusEnabled}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Model(&user).Association("Roles").Append(&role))
	return &user
}

func TestIdentityResolveHydratesRolesAndScopes(t *testing.T) {
	svc, db, _ := newTestIdentityService(t)
	user := seedPrincipal(t, db)

	resolved, err := svc.Resolve(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", resolved.Username)
	require.Len(t, resolved.Roles, 1)
	require.Len(t, resolved.Roles[0].Scopes, 1)
	require.Equal(t, "engineering", resolved.Roles[0].Scopes[0].Name)
}

func TestIdentityResolveServesCachedPrincipal(t *testing.T) {
	svc, db, _ := newTestIdentityService(t)
	user := seedPrincipal(t, db)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, user.ID)
	require.NoError(t, err)

	// A direct column write bypasses invalidation, so the stale cached
	// nickname must keep being served.
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("nickname", "renamed").Error)

	resolved, err := svc.Resolve(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, resolved.Nickname)
}

func TestIdentityInvalidateForcesReload(t *testing.T) {
	svc, db, _ := newTestIdentityService(t)
	user := seedPrincipal(t, db)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("nickname", "renamed").Error)
	require.NoError(t, svc.Invalidate(ctx, user.ID))

	resolved, err := svc.Resolve(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "renamed", resolved.Nickname)
}

func TestIdentityResolveRejectsUnknownAndDisabled(t *testing.T) {
	svc, db, _ := newTestIdentityService(t)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "ghost")
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	user := models.User{Username: "bob", Password: "x", Status: models.StatusDisabled}
	require.NoError(t, db.Create(&user).Error)

	_, err = svc.Resolve(ctx, user.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestIdentityInvalidateAllClearsPrefix(t *testing.T) {
	svc, db, store := newTestIdentityService(t)
	user := seedPrincipal(t, db)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, user.ID)
	require.NoError(t, err)

	_, found, err := store.Get(ctx, IdentityCacheKeyPrefix+user.ID)
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, svc.InvalidateAll(ctx))

	_, found, err = store.Get(ctx, IdentityCacheKeyPrefix+user.ID)
	require.NoError(t, err)
	require.False(t, found)
}
