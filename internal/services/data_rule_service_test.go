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

func newTestRuleService(t *testing.T) (*DataRuleService, *gorm.DB) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	registry := datascope.NewRegistry([]string{"password", "created_at", "updated_at"})
	require.NoError(t, registry.Register("Dept", &models.Dept{}))
	require.NoError(t, registry.Register("User", &models.User{}))

	svc, err := NewDataRuleService(db, registry)
	require.NoError(t, err)
	return svc, db
}

func validRuleInput() DataRuleInput {
	return DataRuleInput{
		Name:       "own department",
		Model:      "Dept",
		Column:     "id",
		Operator:   models.RuleOperatorAnd,
		Expression: models.RuleExpressionEq,
		Value:      "dept-1",
	}
}

func TestDataRuleCreateAndGet(t *testing.T) {
	svc, _ := newTestRuleService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validRuleInput())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "own department", got.Name)
	require.Equal(t, models.RuleExpressionEq, got.Expression)
}

func TestDataRuleCreateRejectsDuplicateName(t *testing.T) {
	svc, _ := newTestRuleService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validRuleInput())
	require.NoError(t, err)

	_, err = svc.Create(ctx, validRuleInput())
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDataRuleCreateRejectsUnknownModel(t *testing.T) {
	svc, _ := newTestRuleService(t)

	input := validRuleInput()
	input.Model = "Ghost"
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, datascope.ErrModelNotFound)
}

func TestDataRuleCreateRejectsExcludedColumn(t *testing.T) {
	svc, _ := newTestRuleService(t)

	input := validRuleInput()
	input.Model = "User"
	input.Column = "password"
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, datascope.ErrColumnNotFound)
}

func TestDataRuleCreateRejectsUnknownExpression(t *testing.T) {
	svc, _ := newTestRuleService(t)

	input := validRuleInput()
	input.Expression = models.RuleExpression(42)
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestDataRuleUpdateRejectsNameTakenByOther(t *testing.T) {
	svc, _ := newTestRuleService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, validRuleInput())
	require.NoError(t, err)

	second := validRuleInput()
	second.Name = "finance only"
	created, err := svc.Create(ctx, second)
	require.NoError(t, err)

	second.Name = first.Name
	_, err = svc.Update(ctx, created.ID, second)
	require.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDataRuleUpdateRewritesFields(t *testing.T) {
	svc, _ := newTestRuleService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validRuleInput())
	require.NoError(t, err)

	input := validRuleInput()
	input.Expression = models.RuleExpressionIn
	input.Value = "dept-1,dept-2"
	updated, err := svc.Update(ctx, created.ID, input)
	require.NoError(t, err)
	require.Equal(t, models.RuleExpressionIn, updated.Expression)
	require.Equal(t, "dept-1,dept-2", updated.Value)
}

func TestDataRuleListFiltersByName(t *testing.T) {
	svc, _ := newTestRuleService(t)
	ctx := context.Background()

	names := []string{"finance only", "people only", "finance managers"}
	for _, name := range names {
		input := validRuleInput()
		input.Name = name
		_, err := svc.Create(ctx, input)
		require.NoError(t, err)
	}

	rules, total, err := svc.List(ctx, ListOptions{Name: "finance"})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, rules, 2)

	rules, total, err = svc.List(ctx, ListOptions{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, rules, 1)
}

func TestDataRuleDeleteDetachesFromScopes(t *testing.T) {
	svc, db := newTestRuleService(t)
	ctx := context.Background()

	rule, err := svc.Create(ctx, validRuleInput())
	require.NoError(t, err)

	scope := models.DataScope{Name: "engineering", Status: models.StatusEnabled}
	require.NoError(t, db.Create(&scope).Error)
	require.NoError(t, db.Model(&scope).Association("Rules").Append(rule))

	require.NoError(t, svc.Delete(ctx, []string{rule.ID}))

	_, err = svc.Get(ctx, rule.ID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	var linked []models.DataRule
	require.NoError(t, db.Model(&scope).Association("Rules").Find(&linked))
	require.Empty(t, linked)
}

func TestDataRuleModelsAndColumns(t *testing.T) {
	svc, _ := newTestRuleService(t)
	ctx := context.Background()

	require.Equal(t, []string{"Dept", "User"}, svc.Models())

	columns, err := svc.Columns(ctx, "User")
	require.NoError(t, err)
	for _, col := range columns {
		require.NotEqual(t, "password", col.Name)
	}

	_, err = svc.Columns(ctx, "Ghost")
	require.ErrorIs(t, err, datascope.ErrModelNotFound)
}
