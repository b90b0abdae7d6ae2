package datascope

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/castellan-io/castellan/internal/models"
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()

	compiler, err := NewCompiler(newTestRegistry(t))
	require.NoError(t, err)
	return compiler
}

func openDeptDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Dept{}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	depts := []models.Dept{
		{BaseModel: models.BaseModel{ID: "5"}, Name: "engineering", Leader: "alice"},
		{BaseModel: models.BaseModel{ID: "6"}, Name: "finance", Leader: "bob"},
		{BaseModel: models.BaseModel{ID: "7"}, Name: "people", Leader: "carol"},
	}
	require.NoError(t, db.Create(&depts).Error)
	return db
}

func deptRule(id, column string, op models.RuleOperator, expr models.RuleExpression, value string) models.DataRule {
	return models.DataRule{
		BaseModel:  models.BaseModel{ID: id},
		Name:       "rule-" + id,
		Model:      "Dept",
		Column:     column,
		Operator:   op,
		Expression: expr,
		Value:      value,
	}
}

func principalWithRules(rules ...models.DataRule) *models.User {
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

func visibleDeptIDs(t *testing.T, db *gorm.DB, expr clause.Expression) []string {
	t.Helper()

	var ids []string
	require.NoError(t, db.Model(&models.Dept{}).Where(expr).Order("id").Pluck("id", &ids).Error)
	return ids
}

func TestCompileSuperuserBypass(t *testing.T) {
	compiler := newTestCompiler(t)

	user := principalWithRules(deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionEq, "5"))
	user.IsSuperuser = true

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, True(), expr)
}

func TestCompileUnrestrictedRoleBypass(t *testing.T) {
	compiler := newTestCompiler(t)

	user := principalWithRules(deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionEq, "5"))
	// A second role without scope filtering grants full visibility even though
	// the first role carries restrictive scopes.
	user.Roles = append(user.Roles, models.Role{IsFilterScopes: false})

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, True(), expr)
}

func TestCompileEmptyRulesDefaultAllow(t *testing.T) {
	compiler := newTestCompiler(t)

	user := principalWithRules()
	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, True(), expr)
}

func TestCompileDisabledScopeContributesNothing(t *testing.T) {
	compiler := newTestCompiler(t)

	user := principalWithRules(deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionEq, "5"))
	user.Roles[0].Scopes[0].Status = models.StatusDisabled

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, True(), expr)
}

func TestCompileAndGroupSemantics(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	user := principalWithRules(
		deptRule("r1", "leader", models.RuleOperatorAnd, models.RuleExpressionEq, "alice"),
		deptRule("r2", "name", models.RuleOperatorAnd, models.RuleExpressionEq, "engineering"),
	)

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, visibleDeptIDs(t, db, expr))

	// A row matching only one of the two mandatory conditions is not admitted.
	user = principalWithRules(
		deptRule("r1", "leader", models.RuleOperatorAnd, models.RuleExpressionEq, "alice"),
		deptRule("r2", "name", models.RuleOperatorAnd, models.RuleExpressionEq, "finance"),
	)
	expr, err = compiler.Compile(user)
	require.NoError(t, err)
	require.Empty(t, visibleDeptIDs(t, db, expr))
}

func TestCompileOrGroupSemantics(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	user := principalWithRules(
		deptRule("r1", "leader", models.RuleOperatorOr, models.RuleExpressionEq, "alice"),
		deptRule("r2", "leader", models.RuleOperatorOr, models.RuleExpressionEq, "bob"),
	)

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"5", "6"}, visibleDeptIDs(t, db, expr))
}

func TestCompileMixedBucketsUnion(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	// The OR bucket admits rows even when they fail every AND-bucket rule.
	// This pins the shipped policy; do not "fix" without product confirmation.
	user := principalWithRules(
		deptRule("r1", "leader", models.RuleOperatorAnd, models.RuleExpressionEq, "alice"),
		deptRule("r2", "name", models.RuleOperatorAnd, models.RuleExpressionEq, "engineering"),
		deptRule("r3", "leader", models.RuleOperatorOr, models.RuleExpressionEq, "carol"),
	)

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"5", "7"}, visibleDeptIDs(t, db, expr))
}

func TestCompileComparisonExpressions(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	cases := []struct {
		name string
		expr models.RuleExpression
		val  string
		want []string
	}{
		{"ne", models.RuleExpressionNe, "5", []string{"6", "7"}},
		{"gt", models.RuleExpressionGt, "5", []string{"6", "7"}},
		{"ge", models.RuleExpressionGe, "6", []string{"6", "7"}},
		{"lt", models.RuleExpressionLt, "6", []string{"5"}},
		{"le", models.RuleExpressionLe, "6", []string{"5", "6"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			user := principalWithRules(deptRule("r1", "id", models.RuleOperatorAnd, tc.expr, tc.val))
			expr, err := compiler.Compile(user)
			require.NoError(t, err)
			require.Equal(t, tc.want, visibleDeptIDs(t, db, expr))
		})
	}
}

func TestCompileInSplitsDelimitedValue(t *testing.T) {
	compiler := newTestCompiler(t)

	cond, err := compiler.ruleCondition(deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionIn, "1,2,3"))
	require.NoError(t, err)

	in, ok := cond.(clause.IN)
	require.True(t, ok)
	require.Equal(t, []any{"1", "2", "3"}, in.Values)

	db := openDeptDB(t)
	user := principalWithRules(deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionIn, "5, 7"))
	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"5", "7"}, visibleDeptIDs(t, db, expr))
}

func TestCompileNotIn(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	user := principalWithRules(deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionNotIn, "5,6"))
	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"7"}, visibleDeptIDs(t, db, expr))
}

func TestCompileInvalidModelAbortsWholeCompilation(t *testing.T) {
	compiler := newTestCompiler(t)

	valid := deptRule("r1", "id", models.RuleOperatorAnd, models.RuleExpressionEq, "5")
	invalid := deptRule("r2", "id", models.RuleOperatorAnd, models.RuleExpressionEq, "5")
	invalid.Model = "Retired"

	expr, err := compiler.Compile(principalWithRules(valid, invalid))
	require.ErrorIs(t, err, ErrModelNotFound)
	require.Nil(t, expr)
}

func TestCompileExcludedColumnAbortsWholeCompilation(t *testing.T) {
	compiler := newTestCompiler(t)

	rule := deptRule("r1", "created_at", models.RuleOperatorAnd, models.RuleExpressionEq, "2024-01-01")
	expr, err := compiler.Compile(principalWithRules(rule))
	require.ErrorIs(t, err, ErrColumnNotFound)
	require.Nil(t, expr)
}

func TestCompileDeduplicatesSharedRules(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	rule := deptRule("r1", "leader", models.RuleOperatorAnd, models.RuleExpressionEq, "alice")
	user := &models.User{
		Roles: []models.Role{
			{IsFilterScopes: true, Scopes: []models.DataScope{{Status: models.StatusEnabled, Rules: []models.DataRule{rule}}}},
			{IsFilterScopes: true, Scopes: []models.DataScope{{Status: models.StatusEnabled, Rules: []models.DataRule{rule}}}},
		},
	}

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, visibleDeptIDs(t, db, expr))
}

func TestCompileEndToEndScopeToggle(t *testing.T) {
	compiler := newTestCompiler(t)
	db := openDeptDB(t)

	user := principalWithRules(deptRule("dept_eq_5", "id", models.RuleOperatorAnd, models.RuleExpressionEq, "5"))

	expr, err := compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, []string{"5"}, visibleDeptIDs(t, db, expr))

	// Toggling the scope off restores full visibility.
	user.Roles[0].Scopes[0].Status = models.StatusDisabled
	expr, err = compiler.Compile(user)
	require.NoError(t, err)
	require.Equal(t, True(), expr)
	require.Equal(t, []string{"5", "6", "7"}, visibleDeptIDs(t, db, expr))
}
