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

// RoleInput carries the writable fields of a role. Status and IsFilterScopes
// are pointers so explicit zero values survive the write; omitted means
// enabled and scope-filtered respectively.
type RoleInput struct {
	Name           string `json:"name" validate:"required,max=64"`
	Status         *int   `json:"status" validate:"omitempty,oneof=0 1"`
	IsFilterScopes *bool  `json:"is_filter_scopes"`
	Remark         string `json:"remark" validate:"max=255"`
}

// RoleService manages roles and their menu/scope assignments. Any change that
// alters what a role grants invalidates the cached principals of its members.
type RoleService struct {
	db          *gorm.DB
	invalidator IdentityInvalidator
	log         *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(db *gorm.DB, invalidator IdentityInvalidator) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{
		db:          db,
		invalidator: invalidator,
		log:         logger.WithModule("roles"),
	}, nil
}

// Get returns one role with its menus and scopes.
func (s *RoleService) Get(ctx context.Context, id string) (*models.Role, error) {
	var role models.Role
	err := s.db.WithContext(ctx).
		Preload("Menus").
		Preload("Scopes").
		First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("role service: get: %w", err)
	}
	return &role, nil
}

// GetAll returns every role, for user-assignment pickers.
func (s *RoleService) GetAll(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := s.db.WithContext(ctx).Order("name").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: get all: %w", err)
	}
	return roles, nil
}

// List returns a page of roles, optionally filtered by a name fragment.
func (s *RoleService) List(ctx context.Context, opts ListOptions) ([]models.Role, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&models.Role{})
	if name := strings.TrimSpace(opts.Name); name != "" {
		query = query.Where("name LIKE ?", "%"+name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("role service: count: %w", err)
	}

	var roles []models.Role
	err := query.Order("created_at DESC").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&roles).Error
	if err != nil {
		return nil, 0, fmt.Errorf("role service: list: %w", err)
	}
	return roles, total, nil
}

// Create stores a new role.
func (s *RoleService) Create(ctx context.Context, input RoleInput) (*models.Role, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Role name is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Role{}).
		Where("name = ?", input.Name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("role service: check name: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Role name already exists")
	}

	role := models.Role{
		Name:           input.Name,
		Status:         statusOrEnabled(input.Status),
		IsFilterScopes: boolOrTrue(input.IsFilterScopes),
		Remark:         input.Remark,
	}
	if err := s.db.WithContext(ctx).Create(&role).Error; err != nil {
		return nil, fmt.Errorf("role service: create: %w", err)
	}
	return &role, nil
}

// Update rewrites a role's fields. Flipping IsFilterScopes changes member row
// visibility, so members are invalidated on every update.
func (s *RoleService) Update(ctx context.Context, id string, input RoleInput) (*models.Role, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Role name is required")
	}

	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Role{}).
		Where("name = ? AND id <> ?", input.Name, id).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("role service: check name: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Role name already exists")
	}

	updates := map[string]any{
		"name":             input.Name,
		"status":           statusOrEnabled(input.Status),
		"is_filter_scopes": boolOrTrue(input.IsFilterScopes),
		"remark":           input.Remark,
	}
	if err := s.db.WithContext(ctx).Model(role).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("role service: update: %w", err)
	}

	s.invalidateMembers(ctx, id)
	return s.Get(ctx, id)
}

// SetMenus replaces the role's menu grants wholesale.
func (s *RoleService) SetMenus(ctx context.Context, id string, menuIDs []string) error {
	role, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var menus []models.Menu
	if len(menuIDs) > 0 {
		if err := s.db.WithContext(ctx).Find(&menus, "id IN ?", menuIDs).Error; err != nil {
			return fmt.Errorf("role service: load menus: %w", err)
		}
		if len(menus) != len(uniqueStrings(menuIDs)) {
			return apperrors.ErrNotFound.WithMessage("One or more menus do not exist")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(role).Association("Menus").Replace(menus)
	})
	if err != nil {
		return fmt.Errorf("role service: replace menus: %w", err)
	}

	s.invalidateMembers(ctx, id)
	return nil
}

// SetScopes replaces the role's data-scope assignments wholesale.
func (s *RoleService) SetScopes(ctx context.Context, id string, scopeIDs []string) error {
	role, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var scopes []models.DataScope
	if len(scopeIDs) > 0 {
		if err := s.db.WithContext(ctx).Find(&scopes, "id IN ?", scopeIDs).Error; err != nil {
			return fmt.Errorf("role service: load scopes: %w", err)
		}
		if len(scopes) != len(uniqueStrings(scopeIDs)) {
			return apperrors.ErrNotFound.WithMessage("One or more data scopes do not exist")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(role).Association("Scopes").Replace(scopes)
	})
	if err != nil {
		return fmt.Errorf("role service: replace scopes: %w", err)
	}

	s.invalidateMembers(ctx, id)
	return nil
}

// Delete removes a role unless users still hold it.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	role, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	members := s.db.WithContext(ctx).Model(role).Association("Users").Count()
	if members > 0 {
		return apperrors.ErrBadRequest.WithMessage("Role is still assigned to users")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(role).Association("Menus").Clear(); err != nil {
			return fmt.Errorf("role service: clear menus: %w", err)
		}
		if err := tx.Model(role).Association("Scopes").Clear(); err != nil {
			return fmt.Errorf("role service: clear scopes: %w", err)
		}
		if err := tx.Delete(role).Error; err != nil {
			return fmt.Errorf("role service: delete: %w", err)
		}
		return nil
	})
}

func (s *RoleService) invalidateMembers(ctx context.Context, roleID string) {
	if s.invalidator == nil {
		return
	}

	var userIDs []string
	err := s.db.WithContext(ctx).
		Table("user_roles").
		Where("role_id = ?", roleID).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		s.log.Error("role members unresolved, stale principals expire via TTL",
			zap.String("role_id", roleID), zap.Error(err))
		return
	}
	if len(userIDs) == 0 {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userIDs...); err != nil {
		s.log.Error("identity invalidation failed, stale principals expire via TTL",
			zap.String("role_id", roleID), zap.Error(err))
	}
}
