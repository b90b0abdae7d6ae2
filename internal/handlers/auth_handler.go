package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/middleware"
	"github.com/castellan-io/castellan/internal/rbac"
	"github.com/castellan-io/castellan/internal/services"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/response"
)

// AuthHandler exposes login and the current-principal endpoints.
type AuthHandler struct {
	auth  *services.AuthService
	menus *services.MenuService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *services.AuthService, menus *services.MenuService) *AuthHandler {
	return &AuthHandler{auth: auth, menus: menus}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		response.Error(c, err)
		return
	}
	req.IPAddress = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	result, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Me handles GET /api/auth/me: the hydrated principal plus its effective
// permission codes.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	codes := rbac.PermissionCodes(user)
	perms := make([]string, 0, len(codes))
	for code := range codes {
		perms = append(perms, code)
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":        user,
		"permissions": perms,
	})
}

// Sidebar handles GET /api/auth/sidebar: the principal's navigation tree.
func (h *AuthHandler) Sidebar(c *gin.Context) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	tree, err := h.menus.Sidebar(c.Request.Context(), user)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tree)
}
