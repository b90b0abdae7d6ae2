package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// DataRuleHandler exposes CRUD plus the model/column catalog for rule authoring.
type DataRuleHandler struct {
	rules *services.DataRuleService
}

// NewDataRuleHandler constructs a DataRuleHandler.
func NewDataRuleHandler(rules *services.DataRuleService) *DataRuleHandler {
	return &DataRuleHandler{rules: rules}
}

// List handles GET /api/data-rules.
func (h *DataRuleHandler) List(c *gin.Context) {
	opts := listOptions(c)
	rules, total, err := h.rules.List(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, rules, response.NewMeta(opts.Page, opts.PerPage, total))
}

// GetAll handles GET /api/data-rules/all.
func (h *DataRuleHandler) GetAll(c *gin.Context) {
	rules, err := h.rules.GetAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rules)
}

// Get handles GET /api/data-rules/:id.
func (h *DataRuleHandler) Get(c *gin.Context) {
	rule, err := h.rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// Models handles GET /api/data-rules/models: the registered logical models.
func (h *DataRuleHandler) Models(c *gin.Context) {
	response.Success(c, http.StatusOK, h.rules.Models())
}

// Columns handles GET /api/data-rules/models/:name/columns.
func (h *DataRuleHandler) Columns(c *gin.Context) {
	columns, err := h.rules.Columns(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, columns)
}

// Create handles POST /api/data-rules.
func (h *DataRuleHandler) Create(c *gin.Context) {
	var input services.DataRuleInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, rule)
}

// Update handles PUT /api/data-rules/:id.
func (h *DataRuleHandler) Update(c *gin.Context) {
	var input services.DataRuleInput
	if err := bindJSON(c, &input); err != nil {
		response.Error(c, err)
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rule)
}

// Delete handles DELETE /api/data-rules/:id. Several comma-separated ids may
// be supplied for batch deletion.
func (h *DataRuleHandler) Delete(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), splitIDs(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nil)
}
