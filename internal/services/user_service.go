package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/models"
	"github.com/castellan-io/castellan/pkg/crypto"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

// UserInput carries the writable fields of a user account. Status is a
// pointer so an explicit 0 (disabled) survives the write; omitted means
// enabled.
type UserInput struct {
	Username     string  `json:"username" validate:"required,min=2,max=64"`
	Nickname     string  `json:"nickname" validate:"max=64"`
	Password     string  `json:"password" validate:"omitempty,min=8,max=128"`
	Email        string  `json:"email" validate:"omitempty,email,max=128"`
	Phone        string  `json:"phone" validate:"max=32"`
	Avatar       string  `json:"avatar" validate:"max=255"`
	Status       *int    `json:"status" validate:"omitempty,oneof=0 1"`
	IsStaff      bool    `json:"is_staff"`
	IsMultiLogin bool    `json:"is_multi_login"`
	DeptID       *string `json:"dept_id"`
}

// UserListOptions extends pagination with user-specific filters.
type UserListOptions struct {
	ListOptions
	Username string
	DeptID   string
}

// UserService manages platform accounts. Role assignment changes invalidate
// the account's cached principal immediately.
type UserService struct {
	db          *gorm.DB
	invalidator IdentityInvalidator
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, invalidator IdentityInvalidator) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, invalidator: invalidator}, nil
}

// Get returns one user with roles and department.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles").
		Preload("Dept").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get: %w", err)
	}
	return &user, nil
}

// GetByUsername returns one user by login name, including credentials.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get by username: %w", err)
	}
	return &user, nil
}

// List returns a page of users filtered by username fragment and department.
func (s *UserService) List(ctx context.Context, opts UserListOptions) ([]models.User, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&models.User{})
	if username := strings.TrimSpace(opts.Username); username != "" {
		query = query.Where("username LIKE ?", "%"+username+"%")
	}
	if opts.DeptID != "" {
		query = query.Where("dept_id = ?", opts.DeptID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count: %w", err)
	}

	var users []models.User
	err := query.Preload("Dept").Preload("Roles").
		Order("created_at DESC").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("user service: list: %w", err)
	}
	return users, total, nil
}

// Create stores a new account with a hashed password.
func (s *UserService) Create(ctx context.Context, input UserInput) (*models.User, error) {
	if strings.TrimSpace(input.Username) == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Username is required")
	}
	if input.Password == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Password is required")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ?", input.Username).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("user service: check username: %w", err)
	}
	if count > 0 {
		return nil, apperrors.ErrConflict.WithMessage("Username already exists")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := models.User{
		Username:     input.Username,
		Nickname:     input.Nickname,
		Password:     hash,
		Email:        input.Email,
		Phone:        input.Phone,
		Avatar:       input.Avatar,
		Status:       statusOrEnabled(input.Status),
		IsStaff:      input.IsStaff,
		IsMultiLogin: input.IsMultiLogin,
		DeptID:       input.DeptID,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("user service: create: %w", err)
	}
	return &user, nil
}

// Update rewrites an account's profile fields. Username and password are not
// changed here; credentials go through UpdatePassword.
func (s *UserService) Update(ctx context.Context, id string, input UserInput) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"nickname":       input.Nickname,
		"email":          input.Email,
		"phone":          input.Phone,
		"avatar":         input.Avatar,
		"status":         statusOrEnabled(input.Status),
		"is_staff":       input.IsStaff,
		"is_multi_login": input.IsMultiLogin,
		"dept_id":        input.DeptID,
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update: %w", err)
	}

	s.invalidate(ctx, id)
	return s.Get(ctx, id)
}

// UpdatePassword replaces the account's credentials.
func (s *UserService) UpdatePassword(ctx context.Context, id, password string) error {
	if len(password) < 8 {
		return apperrors.ErrBadRequest.WithMessage("Password must be at least 8 characters")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", hash).Error; err != nil {
		return fmt.Errorf("user service: update password: %w", err)
	}
	return nil
}

// SetRoles replaces the account's role assignments wholesale.
func (s *UserService) SetRoles(ctx context.Context, id string, roleIDs []string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var roles []models.Role
	if len(roleIDs) > 0 {
		if err := s.db.WithContext(ctx).Find(&roles, "id IN ?", roleIDs).Error; err != nil {
			return fmt.Errorf("user service: load roles: %w", err)
		}
		if len(roles) != len(uniqueStrings(roleIDs)) {
			return apperrors.ErrNotFound.WithMessage("One or more roles do not exist")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(user).Association("Roles").Replace(roles)
	})
	if err != nil {
		return fmt.Errorf("user service: replace roles: %w", err)
	}

	s.invalidate(ctx, id)
	return nil
}

// Delete removes an account and its role assignments.
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.IsSuperuser {
		return apperrors.ErrBadRequest.WithMessage("Superuser accounts cannot be deleted")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(user).Association("Roles").Clear(); err != nil {
			return fmt.Errorf("user service: clear roles: %w", err)
		}
		if err := tx.Delete(user).Error; err != nil {
			return fmt.Errorf("user service: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *UserService) invalidate(ctx context.Context, id string) {
	if s.invalidator == nil {
		return
	}
	_ = s.invalidator.Invalidate(ctx, id)
}
