package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/auditctx"
	"github.com/castellan-io/castellan/internal/auth"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/response"
)

// Context keys populated by the authentication middleware.
const (
	CtxUserIDKey = "auth.user_id"
	CtxUserKey   = "auth.user"
)

// RequireAuth validates the bearer token and loads the hydrated principal
// into the request context. Handlers past this point may rely on UserFrom.
func RequireAuth(jwt *auth.JWTService, identity *auth.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := identity.Resolve(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUserKey, user)
		auditctx.SetActor(c, user)
		c.Next()
	}
}

// UserFrom returns the authenticated principal placed by RequireAuth.
func UserFrom(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
