package services

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/database/testutil"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

type recordingInvalidator struct {
	calls [][]string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, userIDs ...string) error {
	ids := append([]string(nil), userIDs...)
	sort.Strings(ids)
	r.calls = append(r.calls, ids)
	return nil
}

func (r *recordingInvalidator) invalidated() []string {
	var all []string
	for _, call := range r.calls {
		all = append(all, call...)
	}
	sort.Strings(all)
	return all
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func newTestScopeService(t *testing.T) (*DataScopeService, *gorm.DB, *recordingInvalidator) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	inv := &recordingInvalidator{}
	svc, err := NewDataScopeService(db, inv)
	require.NoError(t, err)
	return svc, db, inv
}

// seedScopeHolders builds scope -> role -> users chains and returns the scope
// plus the ids of the users holding it.
func seedScopeHolders(t *testing.T, db *gorm.DB) (*models.DataScope, []string) {
	t.Helper()

	scope := models.DataScope{Name: "engineering", Status: models.StatusEnabled}
	require.NoError(t, db.Create(&scope).Error)

	role := models.Role{Name: "engineer", Status: models.StatusEnabled, IsFilterScopes: true}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Model(&role).Association("Scopes").Append(&scope))

	alice := models.User{Username: "alice", Password: "x", Status: models.StatusEnabled}
	bob := models.User{Username: "bob", Password: "x", Status: models.StatusEnabled}
	require.NoError(t, db.Create(&alice).Error)
	require.NoError(t, db.Create(&bob).Error)
	require.NoError(t, db.Model(&alice).Association("Roles").Append(&role))
	require.NoError(t, db.Model(&bob).Association("Roles").Append(&role))

	ids := []string{alice.ID, bob.ID}
	sort.Strings(ids)
	return &scope, ids
}

func TestDataScopeCreateRejectsDuplicateName(t *testing.T) {
	svc, _, _ := newTestScopeService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, DataScopeInput{Name: "engineering", Status: intPtr(models.StatusEnabled)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, DataScopeInput{Name: "engineering", Status: intPtr(models.StatusEnabled)})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDataScopeCreatePersistsDisabledStatus(t *testing.T) {
	svc, _, _ := newTestScopeService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, DataScopeInput{Name: "engineering", Status: intPtr(models.StatusDisabled)})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDisabled, got.Status)
	require.False(t, got.Enabled())
}

func TestDataScopeCreateDefaultsToEnabled(t *testing.T) {
	svc, _, _ := newTestScopeService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, DataScopeInput{Name: "engineering"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEnabled, got.Status)
}

func TestDataScopeUpdateRejectsNameTakenByOther(t *testing.T) {
	svc, _, _ := newTestScopeService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, DataScopeInput{Name: "engineering", Status: intPtr(models.StatusEnabled)})
	require.NoError(t, err)

	finance, err := svc.Create(ctx, DataScopeInput{Name: "finance", Status: intPtr(models.StatusEnabled)})
	require.NoError(t, err)

	_, err = svc.Update(ctx, finance.ID, DataScopeInput{Name: "engineering", Status: intPtr(models.StatusEnabled)})
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDataScopeUpdateInvalidatesHolders(t *testing.T) {
	svc, db, inv := newTestScopeService(t)
	ctx := context.Background()

	scope, holders := seedScopeHolders(t, db)

	_, err := svc.Update(ctx, scope.ID, DataScopeInput{Name: "engineering", Status: intPtr(models.StatusDisabled)})
	require.NoError(t, err)
	require.Equal(t, holders, inv.invalidated())

	got, err := svc.Get(ctx, scope.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusDisabled, got.Status)
}

func TestDataScopeUpdateRulesReplacesWholesale(t *testing.T) {
	svc, db, inv := newTestScopeService(t)
	ctx := context.Background()

	scope, holders := seedScopeHolders(t, db)

	old := models.DataRule{Name: "old", Model: "Dept", Column: "id", Value: "1"}
	next := models.DataRule{Name: "next", Model: "Dept", Column: "id", Value: "2"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&next).Error)
	require.NoError(t, db.Model(scope).Association("Rules").Append(&old))

	count, err := svc.UpdateRules(ctx, scope.ID, []string{next.ID})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	rules, err := svc.GetRules(ctx, scope.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "next", rules[0].Name)

	require.Equal(t, holders, inv.invalidated())
}

func TestDataScopeUpdateRulesRejectsUnknownRule(t *testing.T) {
	svc, db, _ := newTestScopeService(t)
	ctx := context.Background()

	scope, _ := seedScopeHolders(t, db)

	_, err := svc.UpdateRules(ctx, scope.ID, []string{"missing-rule"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	rules, err := svc.GetRules(ctx, scope.ID)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestDataScopeUpdateRulesAllowsEmptySet(t *testing.T) {
	svc, db, _ := newTestScopeService(t)
	ctx := context.Background()

	scope, _ := seedScopeHolders(t, db)
	rule := models.DataRule{Name: "old", Model: "Dept", Column: "id", Value: "1"}
	require.NoError(t, db.Create(&rule).Error)
	require.NoError(t, db.Model(scope).Association("Rules").Append(&rule))

	count, err := svc.UpdateRules(ctx, scope.ID, nil)
	require.NoError(t, err)
	require.Zero(t, count)

	rules, err := svc.GetRules(ctx, scope.ID)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestDataScopeDeleteInvalidatesFormerHolders(t *testing.T) {
	svc, db, inv := newTestScopeService(t)
	ctx := context.Background()

	scope, holders := seedScopeHolders(t, db)

	require.NoError(t, svc.Delete(ctx, []string{scope.ID}))
	require.Equal(t, holders, inv.invalidated())

	_, err := svc.Get(ctx, scope.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDataScopeListFiltersByName(t *testing.T) {
	svc, _, _ := newTestScopeService(t)
	ctx := context.Background()

	for _, name := range []string{"engineering", "finance", "people"} {
		_, err := svc.Create(ctx, DataScopeInput{Name: name, Status: intPtr(models.StatusEnabled)})
		require.NoError(t, err)
	}

	scopes, total, err := svc.List(ctx, ListOptions{Name: "fin"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, scopes, 1)
	require.Equal(t, "finance", scopes[0].Name)
}
