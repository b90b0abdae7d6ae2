package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
)

// MenuInput carries the writable fields of a menu node. Status, Display and
// Cache are pointers so explicit zero values survive the write; omitted means
// enabled, displayed and cached.
type MenuInput struct {
	Title     string  `json:"title" validate:"required,max=64"`
	Name      string  `json:"name" validate:"required,max=64"`
	Path      string  `json:"path" validate:"max=255"`
	Sort      int     `json:"sort"`
	Icon      string  `json:"icon" validate:"max=128"`
	Type      int     `json:"type" validate:"min=0,max=4"`
	Component string  `json:"component" validate:"max=255"`
	Perms     string  `json:"perms" validate:"max=128"`
	Status    *int    `json:"status" validate:"omitempty,oneof=0 1"`
	Display   *bool   `json:"display"`
	Cache     *bool   `json:"cache"`
	Link      string  `json:"link"`
	Remark    string  `json:"remark"`
	ParentID  *string `json:"parent_id"`
}

// MenuService manages the navigation tree whose button nodes carry the
// permission codes the RBAC gate checks.
type MenuService struct {
	db          *gorm.DB
	invalidator IdentityInvalidator
}

// NewMenuService constructs a MenuService.
func NewMenuService(db *gorm.DB, invalidator IdentityInvalidator) (*MenuService, error) {
	if db == nil {
		return nil, errors.New("menu service: db is required")
	}
	return &MenuService{db: db, invalidator: invalidator}, nil
}

// Get returns one menu node.
func (s *MenuService) Get(ctx context.Context, id string) (*models.Menu, error) {
	var menu models.Menu
	err := s.db.WithContext(ctx).First(&menu, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Menu not found")
	}
	if err != nil {
		return nil, fmt.Errorf("menu service: get: %w", err)
	}
	return &menu, nil
}

// Tree returns the full menu hierarchy ordered by sort weight.
func (s *MenuService) Tree(ctx context.Context) ([]models.Menu, error) {
	var menus []models.Menu
	if err := s.db.WithContext(ctx).Order("sort, title").Find(&menus).Error; err != nil {
		return nil, fmt.Errorf("menu service: tree: %w", err)
	}
	return buildMenuTree(menus), nil
}

// Sidebar returns the displayable menu tree for the principal: the union of
// the enabled menus granted through their roles, without button nodes.
// Superusers see every menu.
func (s *MenuService) Sidebar(ctx context.Context, user *models.User) ([]models.Menu, error) {
	if user == nil {
		return nil, apperrors.ErrUnauthorized
	}

	var menus []models.Menu
	if user.IsSuperuser {
		err := s.db.WithContext(ctx).
			Where("status = ? AND type <> ?", models.StatusEnabled, models.MenuTypeButton).
			Order("sort, title").Find(&menus).Error
		if err != nil {
			return nil, fmt.Errorf("menu service: sidebar: %w", err)
		}
		return buildMenuTree(menus), nil
	}

	seen := make(map[string]struct{})
	for _, role := range user.Roles {
		if role.Status != models.StatusEnabled {
			continue
		}
		for _, menu := range role.Menus {
			if menu.Status != models.StatusEnabled || menu.Type == models.MenuTypeButton {
				continue
			}
			if _, ok := seen[menu.ID]; ok {
				continue
			}
			seen[menu.ID] = struct{}{}
			menus = append(menus, menu)
		}
	}

	sort.SliceStable(menus, func(i, j int) bool {
		if menus[i].Sort != menus[j].Sort {
			return menus[i].Sort < menus[j].Sort
		}
		return menus[i].Title < menus[j].Title
	})
	return buildMenuTree(menus), nil
}

// Create stores a new menu node.
func (s *MenuService) Create(ctx context.Context, input MenuInput) (*models.Menu, error) {
	if err := s.validateParent(ctx, input.ParentID, ""); err != nil {
		return nil, err
	}

	menu := models.Menu{
		Title:     input.Title,
		Name:      input.Name,
		Path:      input.Path,
		Sort:      input.Sort,
		Icon:      input.Icon,
		Type:      input.Type,
		Component: input.Component,
		Perms:     input.Perms,
		Status:    statusOrEnabled(input.Status),
		Display:   boolOrTrue(input.Display),
		Cache:     boolOrTrue(input.Cache),
		Link:      input.Link,
		Remark:    input.Remark,
		ParentID:  input.ParentID,
	}
	if err := s.db.WithContext(ctx).Create(&menu).Error; err != nil {
		return nil, fmt.Errorf("menu service: create: %w", err)
	}
	return &menu, nil
}

// Update rewrites a menu node. Changing Perms or Status affects every holder's
// permission set, so the holders' cached principals are invalidated.
func (s *MenuService) Update(ctx context.Context, id string, input MenuInput) (*models.Menu, error) {
	menu, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateParent(ctx, input.ParentID, id); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"title":     input.Title,
		"name":      input.Name,
		"path":      input.Path,
		"sort":      input.Sort,
		"icon":      input.Icon,
		"type":      input.Type,
		"component": input.Component,
		"perms":     input.Perms,
		"status":    statusOrEnabled(input.Status),
		"display":   boolOrTrue(input.Display),
		"cache":     boolOrTrue(input.Cache),
		"link":      input.Link,
		"remark":    input.Remark,
		"parent_id": input.ParentID,
	}
	if err := s.db.WithContext(ctx).Model(menu).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("menu service: update: %w", err)
	}

	s.invalidateHolders(ctx, id)
	return s.Get(ctx, id)
}

// Delete removes a leaf menu node and its role grants.
func (s *MenuService) Delete(ctx context.Context, id string) error {
	menu, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var children int64
	if err := s.db.WithContext(ctx).Model(&models.Menu{}).
		Where("parent_id = ?", id).Count(&children).Error; err != nil {
		return fmt.Errorf("menu service: count children: %w", err)
	}
	if children > 0 {
		return apperrors.ErrBadRequest.WithMessage("Menu still has child entries")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(menu).Association("Roles").Clear(); err != nil {
			return fmt.Errorf("menu service: clear roles: %w", err)
		}
		if err := tx.Delete(menu).Error; err != nil {
			return fmt.Errorf("menu service: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateHolders(ctx, id)
	return nil
}

func (s *MenuService) validateParent(ctx context.Context, parentID *string, selfID string) error {
	if parentID == nil || *parentID == "" {
		return nil
	}
	if selfID != "" && *parentID == selfID {
		return apperrors.ErrBadRequest.WithMessage("Menu cannot be its own parent")
	}
	if _, err := s.Get(ctx, *parentID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrBadRequest.WithMessage("Parent menu does not exist")
		}
		return err
	}
	return nil
}

// invalidateHolders drops cached principals for users whose roles grant the
// menu. Best effort: failures fall back to the identity TTL.
func (s *MenuService) invalidateHolders(ctx context.Context, menuID string) {
	if s.invalidator == nil {
		return
	}

	var userIDs []string
	err := s.db.WithContext(ctx).
		Table("user_roles").
		Distinct("user_roles.user_id").
		Joins("JOIN role_menus ON role_menus.role_id = user_roles.role_id").
		Where("role_menus.menu_id = ?", menuID).
		Pluck("user_roles.user_id", &userIDs).Error
	if err != nil || len(userIDs) == 0 {
		return
	}
	_ = s.invalidator.Invalidate(ctx, userIDs...)
}

// buildMenuTree nests a flat, pre-sorted slice by ParentID. Nodes whose parent
// is absent from the slice surface as roots so partial grants stay reachable.
func buildMenuTree(menus []models.Menu) []models.Menu {
	nodes := make(map[string]*models.Menu, len(menus))
	order := make([]*models.Menu, 0, len(menus))
	for i := range menus {
		menu := menus[i]
		menu.Children = nil
		nodes[menu.ID] = &menu
		order = append(order, &menu)
	}

	children := make(map[string][]*models.Menu)
	var roots []*models.Menu
	for _, node := range order {
		if node.ParentID != nil {
			if _, ok := nodes[*node.ParentID]; ok {
				children[*node.ParentID] = append(children[*node.ParentID], node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var materialize func(node *models.Menu) models.Menu
	materialize = func(node *models.Menu) models.Menu {
		out := *node
		for _, child := range children[node.ID] {
			out.Children = append(out.Children, materialize(child))
		}
		return out
	}

	tree := make([]models.Menu, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, materialize(root))
	}
	return tree
}
