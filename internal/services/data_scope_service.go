package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/logger"
)

// IdentityInvalidator drops cached principals after permission-affecting
// writes. Implemented by auth.IdentityService.
type IdentityInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string) error
}

// DataScopeInput carries the writable fields of a data scope. Status is a
// pointer so an explicit 0 (disabled) survives the write; omitted means
// enabled.
type DataScopeInput struct {
	Name   string `json:"name" validate:"required,max=64"`
	Status *int   `json:"status" validate:"omitempty,oneof=0 1"`
}

// DataScopeService manages named rule collections and keeps cached principals
// coherent with scope mutations: every write that changes what a scope means
// fans out an identity-cache invalidation to the users holding it.
type DataScopeService struct {
	db          *gorm.DB
	invalidator IdentityInvalidator
	log         *zap.Logger
}

// NewDataScopeService constructs a DataScopeService. invalidator may be nil in
// tests that do not exercise caching.
func NewDataScopeService(db *gorm.DB, invalidator IdentityInvalidator) (*DataScopeService, error) {
	if db == nil {
		return nil, errors.New("data scope service: db is required")
	}
	return &DataScopeService{
		db:          db,
		invalidator: invalidator,
		log:         logger.WithModule("datascope"),
	}, nil
}

// Get returns one scope with its rules.
func (s *DataScopeService) Get(ctx context.Context, id string) (*models.DataScope, error) {
	var scope models.DataScope
	err := s.db.WithContext(ctx).Preload("Rules").First(&scope, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Data scope not found")
	}
	if err != nil {
		return nil, fmt.Errorf("data scope service: get: %w", err)
	}
	return &scope, nil
}

// GetAll returns every scope, for role-assignment pickers.
func (s *DataScopeService) GetAll(ctx context.Context) ([]models.DataScope, error) {
	var scopes []models.DataScope
	if err := s.db.WithContext(ctx).Order("name").Find(&scopes).Error; err != nil {
		return nil, fmt.Errorf("data scope service: get all: %w", err)
	}
	return scopes, nil
}

// GetRules returns the rules attached to a scope.
func (s *DataScopeService) GetRules(ctx context.Context, id string) ([]models.DataRule, error) {
	scope, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return scope.Rules, nil
}

// List returns a page of scopes, optionally filtered by a name fragment.
func (s *DataScopeService) List(ctx context.Context, opts ListOptions) ([]models.DataScope, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&models.DataScope{})
	if name := strings.TrimSpace(opts.Name); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}
	if opts.Status != nil {
		query = query.Where("status = ?", *opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("data scope service: count: %w", err)
	}

	var scopes []models.DataScope
	err := query.Preload("Rules").Order("created_at DESC").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&scopes).Error
	if err != nil {
		return nil, 0, fmt.Errorf("data scope service: list: %w", err)
	}
	return scopes, total, nil
}

// Create stores a new scope.
func (s *DataScopeService) Create(ctx context.Context, input DataScopeInput) (*models.DataScope, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Data scope name is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DataScope{}).
		Where("name = ?", input.Name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("data scope service: check name: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Data scope name already exists")
	}

	scope := models.DataScope{Name: input.Name, Status: statusOrEnabled(input.Status)}
	if err := s.db.WithContext(ctx).Create(&scope).Error; err != nil {
		return nil, fmt.Errorf("data scope service: create: %w", err)
	}
	return &scope, nil
}

// Update rewrites a scope's name and status, then invalidates the holders'
// cached principals since a status flip changes which rules they aggregate.
func (s *DataScopeService) Update(ctx context.Context, id string, input DataScopeInput) (*models.DataScope, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Data scope name is required")
	}

	scope, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.DataScope{}).
		Where("name = ? AND id <> ?", input.Name, id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("data scope service: check name: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Data scope name already exists")
	}

	updates := map[string]any{"name": input.Name, "status": statusOrEnabled(input.Status)}
	if err := s.db.WithContext(ctx).Model(scope).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("data scope service: update: %w", err)
	}

	s.invalidateHolders(ctx, id)
	return s.Get(ctx, id)
}

// UpdateRules replaces the scope's rule set wholesale and returns the new rule
// count. Unknown rule ids fail the whole replacement before anything changes.
func (s *DataScopeService) UpdateRules(ctx context.Context, id string, ruleIDs []string) (int, error) {
	scope, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	var rules []models.DataRule
	if len(ruleIDs) > 0 {
		if err := s.db.WithContext(ctx).Find(&rules, "id IN ?", ruleIDs).Error; err != nil {
			return 0, fmt.Errorf("data scope service: load rules: %w", err)
		}
		if len(rules) != len(uniqueStrings(ruleIDs)) {
			return 0, apperrors.ErrNotFound.WithMessage("One or more data rules do not exist")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(scope).Association("Rules").Replace(rules)
	})
	if err != nil {
		return 0, fmt.Errorf("data scope service: replace rules: %w", err)
	}

	s.invalidateHolders(ctx, id)
	return len(rules), nil
}

// Delete removes the scopes, detaching them from roles and rules first.
// Unknown ids fail the whole batch before anything is removed.
func (s *DataScopeService) Delete(ctx context.Context, ids []string) error {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return apperrors.ErrBadRequest.WithMessage("No data scope ids supplied")
	}

	var scopes []models.DataScope
	if err := s.db.WithContext(ctx).Find(&scopes, "id IN ?", ids).Error; err != nil {
		return fmt.Errorf("data scope service: load: %w", err)
	}
	if len(scopes) != len(ids) {
		return apperrors.ErrNotFound.WithMessage("One or more data scopes do not exist")
	}

	// Holders are computed before the role associations are cleared.
	holders := make(map[string]struct{})
	var holderErr error
	for _, id := range ids {
		userIDs, err := s.holderUserIDs(ctx, id)
		if err != nil {
			holderErr = err
			break
		}
		for _, userID := range userIDs {
			holders[userID] = struct{}{}
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range scopes {
			if err := tx.Model(&scopes[i]).Association("Rules").Clear(); err != nil {
				return fmt.Errorf("clear rules: %w", err)
			}
			if err := tx.Model(&scopes[i]).Association("Roles").Clear(); err != nil {
				return fmt.Errorf("clear roles: %w", err)
			}
		}
		if err := tx.Delete(&models.DataScope{}, "id IN ?", ids).Error; err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("data scope service: %w", err)
	}

	if holderErr != nil {
		s.log.Error("data scope holders unresolved, stale principals expire via TTL",
			zap.Strings("scope_ids", ids), zap.Error(holderErr))
		return nil
	}
	userIDs := make([]string, 0, len(holders))
	for userID := range holders {
		userIDs = append(userIDs, userID)
	}
	s.invalidate(ctx, userIDs)
	return nil
}

// invalidateHolders fans the identity-cache invalidation out to every user
// whose roles carry the scope. The write is already committed; failures are
// logged and left to the cache TTL, never surfaced to the caller.
func (s *DataScopeService) invalidateHolders(ctx context.Context, scopeID string) {
	userIDs, err := s.holderUserIDs(ctx, scopeID)
	if err != nil {
		s.log.Error("data scope holders unresolved, stale principals expire via TTL",
			zap.String("scope_id", scopeID), zap.Error(err))
		return
	}
	s.invalidate(ctx, userIDs)
}

func (s *DataScopeService) invalidate(ctx context.Context, userIDs []string) {
	if s.invalidator == nil || len(userIDs) == 0 {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userIDs...); err != nil {
		s.log.Error("identity invalidation failed, stale principals expire via TTL",
			zap.Int("users", len(userIDs)), zap.Error(err))
	}
}

// holderUserIDs walks scope -> roles -> users through the join tables.
func (s *DataScopeService) holderUserIDs(ctx context.Context, scopeID string) ([]string, error) {
	var userIDs []string
	err := s.db.WithContext(ctx).
		Table("user_roles").
		Distinct("user_roles.user_id").
		Joins("JOIN role_data_scopes ON role_data_scopes.role_id = user_roles.role_id").
		Where("role_data_scopes.data_scope_id = ?", scopeID).
		Pluck("user_roles.user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("data scope service: resolve holders: %w", err)
	}
	return userIDs, nil
}

// statusOrEnabled resolves an optional status field; entities default to
// enabled unless the caller says otherwise.
func statusOrEnabled(status *int) int {
	if status == nil {
		return models.StatusEnabled
	}
	return *status
}

func boolOrTrue(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
