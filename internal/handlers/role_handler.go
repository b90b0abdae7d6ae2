package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// RoleHandler exposes role management including menu and data-scope grants.
type RoleHandler struct {
	roles *services.RoleService
}

// NewRoleHandler constructs a RoleHandler.
func NewRoleHandler(roles *services.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// List handles GET /api/roles.
func (h *RoleHandler) List(c *gin.Context) {
	opts := listOptions(c)
	roles, total, err := h.roles.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, roles, response.NewMeta(opts.Page, opts.PerPage, total))
}

// GetAll handles GET /api/roles/all.
func (h *RoleHandler) GetAll(c *gin.Context) {
	roles, err := h.roles.GetAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, roles)
}

// Get handles GET /api/roles/:id.
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.roles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// Create handles POST /api/roles.
func (h *RoleHandler) Create(c *gin.Context) {
	var input services.RoleInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	role, err := h.roles.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

// Update handles PUT /api/roles/:id.
func (h *RoleHandler) Update(c *gin.Context) {
	var input services.RoleInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	role, err := h.roles.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// SetMenus handles PUT /api/roles/:id/menus: wholesale replacement.
func (h *RoleHandler) SetMenus(c *gin.Context) {
	var input struct {
		MenuIDs []string `json:"menu_ids"`
	}
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.roles.SetMenus(c.Request.Context(), c.Param("id"), input.MenuIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// SetScopes handles PUT /api/roles/:id/scopes: wholesale replacement.
func (h *RoleHandler) SetScopes(c *gin.Context) {
	var input struct {
		ScopeIDs []string `json:"scope_ids"`
	}
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.roles.SetScopes(c.Request.Context(), c.Param("id"), input.ScopeIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// Delete handles DELETE /api/roles/:id.
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.roles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}
