package datascope

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/castellan-io/castellan/internal/models"
)

// True returns the trivial always-true predicate, meaning no row filtering is
// applied.
func True() clause.Expression {
	return clause.Expr{SQL: "1 = 1"}
}

// Compiler translates a principal's aggregated data rules into a single boolean
// predicate composable into list queries.
type Compiler struct {
	registry *Registry
}

// NewCompiler constructs a predicate compiler over the given registry.
func NewCompiler(registry *Registry) (*Compiler, error) {
	if registry == nil {
		return nil, errors.New("data scope compiler: registry is required")
	}
	return &Compiler{registry: registry}, nil
}

// Compile builds the row-visibility predicate for the principal. The user must
// arrive fully hydrated: roles with their scopes and the scopes' rules.
//
// Evaluation order, in short-circuit order:
//  1. superusers see everything;
//  2. any role with IsFilterScopes=false grants full visibility (a union of
//     permissiveness, not an intersection);
//  3. rules are unioned across all enabled scopes of all roles, deduplicated;
//  4. no rules means no filtering;
//  5. each rule is validated against the registry and filed into an AND or OR
//     bucket; an invalid model or column reference aborts the whole compile;
//  6. the AND bucket conjunction and the OR bucket disjunction are themselves
//     joined with OR, so a row is admitted when either the strict branch or
//     any exception branch matches.
func (c *Compiler) Compile(user *models.User) (clause.Expression, error) {
	if user == nil {
		return nil, errors.New("data scope compiler: user is required")
	}

	if user.IsSuperuser {
		return True(), nil
	}

	for _, role := range user.Roles {
		if !role.IsFilterScopes {
			return True(), nil
		}
	}

	rules := make(map[string]models.DataRule)
	for _, role := range user.Roles {
		for _, scope := range role.Scopes {
			if !scope.Enabled() {
				continue
			}
			for _, rule := range scope.Rules {
				rules[rule.ID] = rule
			}
		}
	}

	if len(rules) == 0 {
		return True(), nil
	}

	var andConds, orConds []clause.Expression
	for _, rule := range rules {
		cond, err := c.ruleCondition(rule)
		if err != nil {
			return nil, err
		}

		switch rule.Operator {
		case models.RuleOperatorAnd:
			andConds = append(andConds, cond)
		case models.RuleOperatorOr:
			orConds = append(orConds, cond)
		default:
			return nil, fmt.Errorf("data scope compiler: rule %q: %w", rule.Name, rule.Operator.Validate())
		}
	}

	groups := make([]clause.Expression, 0, 2)
	if len(andConds) > 0 {
		groups = append(groups, clause.And(andConds...))
	}
	if len(orConds) > 0 {
		groups = append(groups, clause.Or(orConds...))
	}
	if len(groups) == 0 {
		return True(), nil
	}
	return clause.Or(groups...), nil
}

// ruleCondition resolves the rule's catalog references and builds the
// column-level comparison.
func (c *Compiler) ruleCondition(rule models.DataRule) (clause.Expression, error) {
	model, err := c.registry.Resolve(rule.Model)
	if err != nil {
		return nil, fmt.Errorf("data scope compiler: rule %q: %w", rule.Name, err)
	}

	column, err := model.Column(rule.Column)
	if err != nil {
		return nil, fmt.Errorf("data scope compiler: rule %q: %w", rule.Name, err)
	}

	switch rule.Expression {
	case models.RuleExpressionEq:
		return clause.Eq{Column: column, Value: rule.Value}, nil
	case models.RuleExpressionNe:
		return clause.Neq{Column: column, Value: rule.Value}, nil
	case models.RuleExpressionGt:
		return clause.Gt{Column: column, Value: rule.Value}, nil
	case models.RuleExpressionGe:
		return clause.Gte{Column: column, Value: rule.Value}, nil
	case models.RuleExpressionLt:
		return clause.Lt{Column: column, Value: rule.Value}, nil
	case models.RuleExpressionLe:
		return clause.Lte{Column: column, Value: rule.Value}, nil
	case models.RuleExpressionIn:
		return clause.IN{Column: column, Values: splitValues(rule.Value)}, nil
	case models.RuleExpressionNotIn:
		return clause.Not(clause.IN{Column: column, Values: splitValues(rule.Value)}), nil
	default:
		return nil, fmt.Errorf("data scope compiler: rule %q: %w", rule.Name, rule.Expression.Validate())
	}
}

// splitValues interprets a stored rule value as a comma-separated list.
func splitValues(value string) []any {
	parts := strings.Split(value, ",")
	values := make([]any, 0, len(parts))
	for _, part := range parts {
		values = append(values, strings.TrimSpace(part))
	}
	return values
}
