package models

import "fmt"

// RuleOperator declares which logical group a rule's condition joins.
type RuleOperator int

const (
	RuleOperatorAnd RuleOperator = 0
	RuleOperatorOr  RuleOperator = 1
)

// Validate rejects operator codes outside the known set.
func (o RuleOperator) Validate() error {
	switch o {
	case RuleOperatorAnd, RuleOperatorOr:
		return nil
	default:
		return fmt.Errorf("data rule: unknown operator %d", int(o))
	}
}

func (o RuleOperator) String() string {
	switch o {
	case RuleOperatorAnd:
		return "and"
	case RuleOperatorOr:
		return "or"
	default:
		return fmt.Sprintf("operator(%d)", int(o))
	}
}

// RuleExpression selects the comparison semantics of a rule condition.
type RuleExpression int

const (
	RuleExpressionEq    RuleExpression = 0
	RuleExpressionNe    RuleExpression = 1
	RuleExpressionGt    RuleExpression = 2
	RuleExpressionGe    RuleExpression = 3
	RuleExpressionLt    RuleExpression = 4
	RuleExpressionLe    RuleExpression = 5
	RuleExpressionIn    RuleExpression = 6
	RuleExpressionNotIn RuleExpression = 7
)

// Validate rejects expression codes outside the known set.
func (e RuleExpression) Validate() error {
	if e < RuleExpressionEq || e > RuleExpressionNotIn {
		return fmt.Errorf("data rule: unknown expression %d", int(e))
	}
	return nil
}

func (e RuleExpression) String() string {
	switch e {
	case RuleExpressionEq:
		return "eq"
	case RuleExpressionNe:
		return "ne"
	case RuleExpressionGt:
		return "gt"
	case RuleExpressionGe:
		return "ge"
	case RuleExpressionLt:
		return "lt"
	case RuleExpressionLe:
		return "le"
	case RuleExpressionIn:
		return "in"
	case RuleExpressionNotIn:
		return "not_in"
	default:
		return fmt.Sprintf("expression(%d)", int(e))
	}
}

// DataRule describes one row-filter condition against a registered model column.
// Model must be a key of the data-permission registry; Column is re-validated
// against the resolved model at every compilation.
type DataRule struct {
	BaseModel

	Name       string         `gorm:"uniqueIndex;size:255;not null" json:"name"`
	Model      string         `gorm:"size:64;not null" json:"model"`
	Column     string         `gorm:"size:64;not null" json:"column"`
	Operator   RuleOperator   `gorm:"not null" json:"operator"`
	Expression RuleExpression `gorm:"not null" json:"expression"`
	Value      string         `gorm:"size:255;not null" json:"value"`

	Scopes []DataScope `gorm:"many2many:data_scope_rules;constraint:OnDelete:CASCADE" json:"scopes,omitempty"`
}
