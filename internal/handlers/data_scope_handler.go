package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// DataScopeHandler exposes CRUD and wholesale rule assignment for data scopes.
type DataScopeHandler struct {
	scopes *services.DataScopeService
}

// NewDataScopeHandler constructs a DataScopeHandler.
func NewDataScopeHandler(scopes *services.DataScopeService) *DataScopeHandler {
	return &DataScopeHandler{scopes: scopes}
}

// List handles GET /api/data-scopes.
func (h *DataScopeHandler) List(c *gin.Context) {
	opts := listOptions(c)
	scopes, total, err := h.scopes.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, scopes, response.NewMeta(opts.Page, opts.PerPage, total))
}

// GetAll handles GET /api/data-scopes/all.
func (h *DataScopeHandler) GetAll(c *gin.Context) {
	scopes, err := h.scopes.GetAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, scopes)
}

// Get handles GET /api/data-scopes/:id.
func (h *DataScopeHandler) Get(c *gin.Context) {
	scope, err := h.scopes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, scope)
}

// GetRules handles GET /api/data-scopes/:id/rules.
func (h *DataScopeHandler) GetRules(c *gin.Context) {
	rules, err := h.scopes.GetRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rules)
}

// Create handles POST /api/data-scopes.
func (h *DataScopeHandler) Create(c *gin.Context) {
	var input services.DataScopeInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	scope, err := h.scopes.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, scope)
}

// Update handles PUT /api/data-scopes/:id.
func (h *DataScopeHandler) Update(c *gin.Context) {
	var input services.DataScopeInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	scope, err := h.scopes.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, scope)
}

// UpdateRules handles PUT /api/data-scopes/:id/rules: wholesale replacement.
func (h *DataScopeHandler) UpdateRules(c *gin.Context) {
	var input struct {
		RuleIDs []string `json:"rule_ids"`
	}
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	count, err := h.scopes.UpdateRules(c.Request.Context(), c.Param("id"), input.RuleIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": count})
}

// Delete handles DELETE /api/data-scopes/:id. Several comma-separated ids may
// be supplied for batch deletion.
func (h *DataScopeHandler) Delete(c *gin.Context) {
	if err := h.scopes.Delete(c.Request.Context(), splitIDs(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}
