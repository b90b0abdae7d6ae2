package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// UserHandler exposes account management.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List handles GET /api/users.
func (h *UserHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	opts := services.UserListOptions{
		ListOptions: services.ListOptions{Page: page, PerPage: perPage},
		Username:    c.Query("username"),
		DeptID:      c.Query("dept_id"),
	}

	users, total, err := h.users.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, response.NewMeta(opts.Page, opts.PerPage, total))
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// Create handles POST /api/users.
func (h *UserHandler) Create(c *gin.Context) {
	var input services.UserInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// Update handles PUT /api/users/:id.
func (h *UserHandler) Update(c *gin.Context) {
	var input services.UserInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	user, err := h.users.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// UpdatePassword handles PUT /api/users/:id/password.
func (h *UserHandler) UpdatePassword(c *gin.Context) {
	var input struct {
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.users.UpdatePassword(c.Request.Context(), c.Param("id"), input.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// SetRoles handles PUT /api/users/:id/roles: wholesale replacement.
func (h *UserHandler) SetRoles(c *gin.Context) {
	var input struct {
		RoleIDs []string `json:"role_ids"`
	}
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.users.SetRoles(c.Request.Context(), c.Param("id"), input.RoleIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}

// Delete handles DELETE /api/users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}
