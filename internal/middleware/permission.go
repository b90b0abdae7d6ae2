package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/auditctx"
	"github.com/castellan-io/castellan/internal/rbac"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/metrics"
	"github.com/castellan-io/castellan/pkg/response"
)

// RequirePermission gates the route behind a declared permission code. It
// must run after RequireAuth; the admitting code is attached to the request
// context for the audit trail.
func RequirePermission(verifier *rbac.Verifier, code string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFrom(c)
		if !ok && verifier.Enabled() {
			metrics.PermissionChecks.WithLabelValues(code, "error").Inc()
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if err := verifier.Verify(user, code); err != nil {
			metrics.PermissionChecks.WithLabelValues(code, "denied").Inc()
			response.Error(c, err)
			c.Abort()
			return
		}

		metrics.PermissionChecks.WithLabelValues(code, "allowed").Inc()
		auditctx.SetPermission(c, code)
		c.Next()
	}
}
