package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/datascope"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

// ListOptions bounds paginated listings. Status filters entities carrying a
// status column when set.
type ListOptions struct {
	Page    int
	PerPage int
	Name    string
	Status  *int
}

func (o *ListOptions) normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PerPage < 1 {
		o.PerPage = 20
	}
	if o.PerPage > 200 {
		o.PerPage = 200
	}
}

func (o ListOptions) offset() int {
	return (o.Page - 1) * o.PerPage
}

// DataRuleInput carries the writable fields of a data rule.
type DataRuleInput struct {
	Name       string                `json:"name" validate:"required,max=255"`
	Model      string                `json:"model" validate:"required,max=64"`
	Column     string                `json:"column" validate:"required,max=64"`
	Operator   models.RuleOperator   `json:"operator"`
	Expression models.RuleExpression `json:"expression"`
	Value      string                `json:"value" validate:"required,max=255"`
}

// DataRuleService manages the stored rule conditions that data scopes are
// assembled from. Every write is validated against the model registry so the
// compiler never meets a rule it cannot resolve.
type DataRuleService struct {
	db       *gorm.DB
	registry *datascope.Registry
}

// NewDataRuleService constructs a DataRuleService.
func NewDataRuleService(db *gorm.DB, registry *datascope.Registry) (*DataRuleService, error) {
	if db == nil {
		return nil, errors.New("data rule service: db is required")
	}
	if registry == nil {
		return nil, errors.New("data rule service: registry is required")
	}
	return &DataRuleService{db: db, registry: registry}, nil
}

// Get returns one rule by id.
func (s *DataRuleService) Get(ctx context.Context, id string) (*models.DataRule, error) {
	var rule models.DataRule
	err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Data rule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("data rule service: get: %w", err)
	}
	return &rule, nil
}

// List returns a page of rules, optionally filtered by a name fragment.
func (s *DataRuleService) List(ctx context.Context, opts ListOptions) ([]models.DataRule, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&models.DataRule{})
	if name := strings.TrimSpace(opts.Name); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("data rule service: count: %w", err)
	}

	var rules []models.DataRule
	err := query.Order("created_at DESC").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&rules).Error
	if err != nil {
		return nil, 0, fmt.Errorf("data rule service: list: %w", err)
	}
	return rules, total, nil
}

// GetAll returns every rule, for scope-assembly pickers.
func (s *DataRuleService) GetAll(ctx context.Context) ([]models.DataRule, error) {
	var rules []models.DataRule
	if err := s.db.WithContext(ctx).Order("name").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("data rule service: get all: %w", err)
	}
	return rules, nil
}

// Models lists the logical model names rules may target. The registry is
// fixed at startup, so no context is needed.
func (s *DataRuleService) Models() []string {
	return s.registry.Names()
}

// Columns lists the rule-addressable columns of a registered model.
func (s *DataRuleService) Columns(ctx context.Context, model string) ([]datascope.ColumnDetail, error) {
	entry, err := s.registry.Resolve(model)
	if err != nil {
		return nil, err
	}
	return entry.Columns(), nil
}

// Create validates and stores a new rule.
func (s *DataRuleService) Create(ctx context.Context, input DataRuleInput) (*models.DataRule, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DataRule{}).
		Where("name = ?", input.Name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("data rule service: check name: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Data rule name already exists")
	}

	rule := models.DataRule{
		Name:       input.Name,
		Model:      input.Model,
		Column:     input.Column,
		Operator:   input.Operator,
		Expression: input.Expression,
		Value:      input.Value,
	}
	if err := s.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, fmt.Errorf("data rule service: create: %w", err)
	}
	return &rule, nil
}

// Update validates and rewrites an existing rule. Principals caching a scope
// built from this rule pick the change up through the identity TTL; rule edits
// do not fan out invalidations because rules are resolved at compile time.
func (s *DataRuleService) Update(ctx context.Context, id string, input DataRuleInput) (*models.DataRule, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DataRule{}).
		Where("name = ? AND id <> ?", input.Name, id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("data rule service: check name: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Data rule name already exists")
	}

	updates := map[string]any{
		"name":       input.Name,
		"model":      input.Model,
		"column":     input.Column,
		"operator":   input.Operator,
		"expression": input.Expression,
		"value":      input.Value,
	}
	if err := s.db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("data rule service: update: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes the rules and their scope memberships. Unknown ids fail the
// whole batch before anything is removed.
func (s *DataRuleService) Delete(ctx context.Context, ids []string) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return apperrors.ErrBadRequest.WithMessage("No data rule ids supplied")
	}

	var rules []models.DataRule
	if err := s.db.WithContext(ctx).Find(&rules, "id IN ?", ids).Error; err != nil {
		return fmt.Errorf("data rule service: load: %w", err)
	}
	if len(rules) != len(ids) {
		return apperrors.ErrNotFound.WithMessage("One or more data rules do not exist")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rules {
			if err := tx.Model(&rules[i]).Association("Scopes").Clear(); err != nil {
				return fmt.Errorf("data rule service: clear scopes: %w", err)
			}
		}
		if err := tx.Delete(&models.DataRule{}, "id IN ?", ids).Error; err != nil {
			return fmt.Errorf("data rule service: delete: %w", err)
		}
		return nil
	})
}

func (s *DataRuleService) validateInput(input DataRuleInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.ErrBadRequest.WithMessage("Data rule name is required")
	}
	if err := input.Operator.Validate(); err != nil {
		return apperrors.ErrBadRequest.WithMessage(err.Error())
	}
	if err := input.Expression.Validate(); err != nil {
		return apperrors.ErrBadRequest.WithMessage(err.Error())
	}

	model, err := s.registry.Resolve(input.Model)
	if err != nil {
		return err
	}
	if _, err := model.Column(input.Column); err != nil {
		return err
	}
	return nil
}
