package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/database/testutil"
	"github.com/castellan-io/castellan/internal/datascope"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

func newTestDeptService(t *testing.T) (*DeptService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	registry := datascope.NewRegistry([]string{"created_at", "updated_at"})
	require.NoError(t, registry.Register("Dept", &models.Dept{}))

	compiler, err := datascope.NewCompiler(registry)
	require.NoError(t, err)

	svc, err := NewDeptService(db, compiler)
	require.NoError(t, err)
	return svc, db
}

func seedDeptRows(t *testing.T, db *gorm.DB) {
	t.Helper()
	depts := []models.Dept{
		{BaseModel: models.BaseModel{ID: "dept-eng"}, Name: "engineering", Sort: 1, Status: models.StatusEnabled},
		{BaseModel: models.BaseModel{ID: "dept-fin"}, Name: "finance", Sort: 2, Status: models.StatusEnabled},
		{BaseModel: models.BaseModel{ID: "dept-ppl"}, Name: "people", Sort: 3, Status: models.StatusEnabled},
	}
	for i := range depts {
		require.NoError(t, db.Create(&depts[i]).Error)
	}
}

// scopedPrincipal assembles a user whose single role carries one enabled scope
// holding the given rules.
func scopedPrincipal(rules ...models.DataRule) *models.User {
	return &models.User{
		Roles: []models.Role{{
			IsFilterScopes: true,
			Scopes: []models.DataScope{{
				Status: models.StatusEnabled,
				Rules:  rules,
			}},
		}},
	}
}

func deptNames(depts []models.Dept) []string {
	names := make([]string, 0, len(depts))
	for _, d := range depts {
		names = append(names, d.Name)
	}
	return names
}

func TestDeptListUnfilteredForSuperuser(t *testing.T) {
	svc, db := newTestDeptService(t)
	seedDeptRows(t, db)

	depts, total, err := svc.List(context.Background(), &models.User{IsSuperuser: true}, ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, depts, 3)
}

func TestDeptListAppliesScopePredicate(t *testing.T) {
	svc, db := newTestDeptService(t)
	seedDeptRows(t, db)

	principal := scopedPrincipal(models.DataRule{
		BaseModel:  models.BaseModel{ID: "rule-1"},
		Name:       "engineering only",
		Model:      "Dept",
		Column:     "name",
		Operator:   models.RuleOperatorAnd,
		Expression: models.RuleExpressionEq,
		Value:      "engineering",
	})

	depts, total, err := svc.List(context.Background(), principal, ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, []string{"engineering"}, deptNames(depts))
}

func TestDeptListWidensAfterScopeDisabled(t *testing.T) {
	svc, db := newTestDeptService(t)
	seedDeptRows(t, db)

	principal := scopedPrincipal(models.DataRule{
		BaseModel:  models.BaseModel{ID: "rule-1"},
		Name:       "engineering only",
		Model:      "Dept",
		Column:     "name",
		Operator:   models.RuleOperatorAnd,
		Expression: models.RuleExpressionEq,
		Value:      "engineering",
	})

	_, total, err := svc.List(context.Background(), principal, ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	principal.Roles[0].Scopes[0].Status = models.StatusDisabled
	_, total, err = svc.List(context.Background(), principal, ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
}

func TestDeptListFailsClosedOnBrokenRule(t *testing.T) {
	svc, db := newTestDeptService(t)
	seedDeptRows(t, db)

	principal := scopedPrincipal(models.DataRule{
		BaseModel:  models.BaseModel{ID: "rule-1"},
		Name:       "stale",
		Model:      "Ghost",
		Column:     "name",
		Operator:   models.RuleOperatorAnd,
		Expression: models.RuleExpressionEq,
		Value:      "engineering",
	})

	depts, _, err := svc.List(context.Background(), principal, ListOptions{})
	require.ErrorIs(t, err, datascope.ErrModelNotFound)
	require.Nil(t, depts)
}

func TestDeptTreeNestsVisibleRows(t *testing.T) {
	svc, db := newTestDeptService(t)
	seedDeptRows(t, db)

	parent := "dept-eng"
	child := models.Dept{Name: "platform", Sort: 4, Status: models.StatusEnabled, ParentID: &parent}
	require.NoError(t, db.Create(&child).Error)

	tree, err := svc.Tree(context.Background(), &models.User{IsSuperuser: true})
	require.NoError(t, err)
	require.Len(t, tree, 3)
	require.Equal(t, "engineering", tree[0].Name)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, "platform", tree[0].Children[0].Name)
}

func TestDeptCreateRejectsMissingParent(t *testing.T) {
	svc, _ := newTestDeptService(t)

	missing := "nope"
	_, err := svc.Create(context.Background(), DeptInput{
		Name:     "orphan",
		Status:   intPtr(models.StatusEnabled),
		ParentID: &missing,
	})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestDeptDeleteGuards(t *testing.T) {
	svc, db := newTestDeptService(t)
	seedDeptRows(t, db)
	ctx := context.Background()

	parent := "dept-eng"
	child := models.Dept{Name: "platform", Status: models.StatusEnabled, ParentID: &parent}
	require.NoError(t, db.Create(&child).Error)

	err := svc.Delete(ctx, "dept-eng")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	deptID := "dept-fin"
	user := models.User{Username: "carol", Password: "x", Status: models.StatusEnabled, DeptID: &deptID}
	require.NoError(t, db.Create(&user).Error)

	err = svc.Delete(ctx, "dept-fin")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	require.NoError(t, svc.Delete(ctx, "dept-ppl"))
	_, err = svc.Get(ctx, "dept-ppl")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
