package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castellan-io/castellan/internal/database/testutil"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

func newTestUserService(t *testing.T) *UserService {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewUserService(db, nil)
	require.NoError(t, err)
	return svc
}

func TestUserCreatePersistsDisabledStatus(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, UserInput{
		Username: "carol",
		Password: "correct-horse",
		Status:   intPtr(models.StatusDisabled),
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDisabled, got.Status)
}

func TestUserCreateDefaultsToEnabled(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, UserInput{
		Username: "carol",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEnabled, got.Status)
}

func TestUserCreateRejectsDuplicateUsername(t *testing.T) {
	svc := newTestUserService(t)
	ctx := context.Background()

	input := UserInput{Username: "carol", Password: "correct-horse"}
	_, err := svc.Create(ctx, input)
	require.NoError(t, err)

	_, err = svc.Create(ctx, input)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}
