package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/response"
)

// AuditHandler exposes the operation and login logs.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

func auditListOptions(c *gin.Context) services.AuditListOptions {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	return services.AuditListOptions{
		ListOptions: services.ListOptions{Page: page, PerPage: perPage},
		Username:    c.Query("username"),
		Permission:  c.Query("permission"),
	}
}

// ListOperations handles GET /api/audit/operations.
func (h *AuditHandler) ListOperations(c *gin.Context) {
	opts := auditListOptions(c)
	logs, total, err := h.audit.ListOperations(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(opts.Page, opts.PerPage, total))
}

// ListLogins handles GET /api/audit/logins.
func (h *AuditHandler) ListLogins(c *gin.Context) {
	opts := auditListOptions(c)
	logs, total, err := h.audit.ListLogins(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(opts.Page, opts.PerPage, total))
}
