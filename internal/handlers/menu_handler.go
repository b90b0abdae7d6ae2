package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// MenuHandler exposes navigation tree management.
type MenuHandler struct {
	menus *services.MenuService
}

// NewMenuHandler constructs a MenuHandler.
func NewMenuHandler(menus *services.MenuService) *MenuHandler {
	return &MenuHandler{menus: menus}
}

// Tree handles GET /api/menus: the full hierarchy for administration.
func (h *MenuHandler) Tree(c *gin.Context) {
	tree, err := h.menus.Tree(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tree)
}

// Get handles GET /api/menus/:id.
func (h *MenuHandler) Get(c *gin.Context) {
	menu, err := h.menus.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, menu)
}

// Create handles POST /api/menus.
func (h *MenuHandler) Create(c *gin.Context) {
	var input services.MenuInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	menu, err := h.menus.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, menu)
}

// Update handles PUT /api/menus/:id.
func (h *MenuHandler) Update(c *gin.Context) {
	var input services.MenuInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	menu, err := h.menus.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, menu)
}

// Delete handles DELETE /api/menus/:id.
func (h *MenuHandler) Delete(c *gin.Context) {
	if err := h.menus.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}
