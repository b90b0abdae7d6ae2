package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/middleware"
	"github.com/castellan-io/castellan/internal/services"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/response"
)

// DeptHandler exposes department management. Listings run through the
// principal's compiled data-scope predicate.
type DeptHandler struct {
	depts *services.DeptService
}

// NewDeptHandler constructs a DeptHandler.
func NewDeptHandler(depts *services.DeptService) *DeptHandler {
	return &DeptHandler{depts: depts}
}

// List handles GET /api/depts.
func (h *DeptHandler) List(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	opts := listOptions(c)
	depts, total, err := h.depts.List(c.Request.Context(), user, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, depts, response.NewMeta(opts.Page, opts.PerPage, total))
}

// Tree handles GET /api/depts/tree.
func (h *DeptHandler) Tree(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	tree, err := h.depts.Tree(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tree)
}

// Get handles GET /api/depts/:id.
func (h *DeptHandler) Get(c *gin.Context) {
	dept, err := h.depts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dept)
}

// Create handles POST /api/depts.
func (h *DeptHandler) Create(c *gin.Context) {
	var input services.DeptInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	dept, err := h.depts.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dept)
}

// Update handles PUT /api/depts/:id.
func (h *DeptHandler) Update(c *gin.Context) {
	var input services.DeptInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	dept, err := h.depts.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dept)
}

// Delete handles DELETE /api/depts/:id.
func (h *DeptHandler) Delete(c *gin.Context) {
	if err := h.depts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}
