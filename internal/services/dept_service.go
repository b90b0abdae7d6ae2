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
	"github.com/castellan-io/castellan/pkg/metrics"
)

// DeptInput carries the writable fields of a department. Status is a pointer
// so an explicit 0 (disabled) survives the write; omitted means enabled.
type DeptInput struct {
	Name     string  `json:"name" validate:"required,max=64"`
	Sort     int     `json:"sort"`
	Leader   string  `json:"leader" validate:"max=64"`
	Phone    string  `json:"phone" validate:"max=32"`
	Email    string  `json:"email" validate:"omitempty,email,max=128"`
	Status   *int    `json:"status" validate:"omitempty,oneof=0 1"`
	ParentID *string `json:"parent_id"`
}

// DeptService manages the department hierarchy. Listings are row-filtered
// through the principal's compiled data-scope predicate, so two users with
// different scopes see different slices of the same table.
type DeptService struct {
	db       *gorm.DB
	compiler *datascope.Compiler
}

// NewDeptService constructs a DeptService.
func NewDeptService(db *gorm.DB, compiler *datascope.Compiler) (*DeptService, error) {
	if db == nil {
		return nil, errors.New("dept service: db is required")
	}
	if compiler == nil {
		return nil, errors.New("dept service: compiler is required")
	}
	return &DeptService{db: db, compiler: compiler}, nil
}

// Get returns one department.
func (s *DeptService) Get(ctx context.Context, id string) (*models.Dept, error) {
	var dept models.Dept
	err := s.db.WithContext(ctx).First(&dept, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Department not found")
	}
	if err != nil {
		return nil, fmt.Errorf("dept service: get: %w", err)
	}
	return &dept, nil
}

// List returns the departments visible to the principal, optionally filtered
// by a name fragment. The compiled predicate is ANDed into the query; a failed
// compilation fails the listing rather than widening it.
func (s *DeptService) List(ctx context.Context, principal *models.User, opts ListOptions) ([]models.Dept, int64, error) {
	opts.normalize()

	expr, err := s.compiler.Compile(principal)
	if err != nil {
		metrics.DataScopeCompilations.WithLabelValues("error").Inc()
		return nil, 0, err
	}
	metrics.DataScopeCompilations.WithLabelValues("ok").Inc()

	query := s.db.WithContext(ctx).Model(&models.Dept{}).Where(expr)
	if name := strings.TrimSpace(opts.Name); name != "" {
		query = query.Where("depts.name LIKE ?", "%"+name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("dept service: count: %w", err)
	}

	var depts []models.Dept
	err = query.Order("depts.sort, depts.name").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&depts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("dept service: list: %w", err)
	}
	return depts, total, nil
}

// Tree returns the visible departments nested by ParentID. Children whose
// ancestors fall outside the principal's scope surface as roots.
func (s *DeptService) Tree(ctx context.Context, principal *models.User) ([]models.Dept, error) {
	expr, err := s.compiler.Compile(principal)
	if err != nil {
		metrics.DataScopeCompilations.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.DataScopeCompilations.WithLabelValues("ok").Inc()

	var depts []models.Dept
	err = s.db.WithContext(ctx).Model(&models.Dept{}).
		Where(expr).Order("depts.sort, depts.name").
		Find(&depts).Error
	if err != nil {
		return nil, fmt.Errorf("dept service: tree: %w", err)
	}
	return buildDeptTree(depts), nil
}

// Create stores a new department.
func (s *DeptService) Create(ctx context.Context, input DeptInput) (*models.Dept, error) {
	if err := s.validateParent(ctx, input.ParentID, ""); err != nil {
		return nil, err
	}

	dept := models.Dept{
		Name:     input.Name,
		Sort:     input.Sort,
		Leader:   input.Leader,
		Phone:    input.Phone,
		Email:    input.Email,
		Status:   statusOrEnabled(input.Status),
		ParentID: input.ParentID,
	}
	if err := s.db.WithContext(ctx).Create(&dept).Error; err != nil {
		return nil, fmt.Errorf("dept service: create: %w", err)
	}
	return &dept, nil
}

// Update rewrites a department.
func (s *DeptService) Update(ctx context.Context, id string, input DeptInput) (*models.Dept, error) {
	dept, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateParent(ctx, input.ParentID, id); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"name":      input.Name,
		"sort":      input.Sort,
		"leader":    input.Leader,
		"phone":     input.Phone,
		"email":     input.Email,
		"status":    statusOrEnabled(input.Status),
		"parent_id": input.ParentID,
	}
	if err := s.db.WithContext(ctx).Model(dept).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("dept service: update: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes an empty leaf department.
func (s *DeptService) Delete(ctx context.Context, id string) error {
	dept, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var children int64
	if err := s.db.WithContext(ctx).Model(&models.Dept{}).
		Where("parent_id = ?", id).Count(&children).Error; err != nil {
		return fmt.Errorf("dept service: count children: %w", err)
	}
	if children > 0 {
		return apperrors.ErrBadRequest.WithMessage("Department still has child departments")
	}

	var members int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("dept_id = ?", id).Count(&members).Error; err != nil {
		return fmt.Errorf("dept service: count members: %w", err)
	}
	if members > 0 {
		return apperrors.ErrBadRequest.WithMessage("Department still has members")
	}

	if err := s.db.WithContext(ctx).Delete(dept).Error; err != nil {
		return fmt.Errorf("dept service: delete: %w", err)
	}
	return nil
}

func (s *DeptService) validateParent(ctx context.Context, parentID *string, selfID string) error {
	if parentID == nil || *parentID == "" {
		return nil
	}
	if selfID != "" && *parentID == selfID {
		return apperrors.ErrBadRequest.WithMessage("Department cannot be its own parent")
	}
	if _, err := s.Get(ctx, *parentID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrBadRequest.WithMessage("Parent department does not exist")
		}
		return err
	}
	return nil
}

func buildDeptTree(depts []models.Dept) []models.Dept {
	nodes := make(map[string]*models.Dept, len(depts))
	order := make([]*models.Dept, 0, len(depts))
	for i := range depts {
		dept := depts[i]
		dept.Children = nil
		nodes[dept.ID] = &dept
		order = append(order, &dept)
	}

	children := make(map[string][]*models.Dept)
	var roots []*models.Dept
	for _, node := range order {
		if node.ParentID != nil {
			if _, ok := nodes[*node.ParentID]; ok {
				children[*node.ParentID] = append(children[*node.ParentID], node)
				continue
			}
		}
		roots = append(roots, node)
	}

	var materialize func(node *models.Dept) models.Dept
	materialize = func(node *models.Dept) models.Dept {
		out := *node
		for _, child := range children[node.ID] {
			out.Children = append(out.Children, materialize(child))
		}
		return out
	}

	tree := make([]models.Dept, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, materialize(root))
	}
	return tree
}
