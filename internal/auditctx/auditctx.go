// Package auditctx carries the acting principal and the permission code that
// admitted the request through the gin context so audit records can be written
// without re-resolving either.
package auditctx

import (
	"github.com/gin-gonic/gin"

	"github.com/castellan-io/castellan/internal/models"
)

const (
	actorKey      = "auditctx.actor"
	permissionKey = "auditctx.permission"
)

// Actor identifies who performed an audited action.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
	UserAgent string
}

// SetActor stores the acting principal on the request context.
func SetActor(c *gin.Context, user *models.User) {
	if c == nil || user == nil {
		return
	}
	c.Set(actorKey, Actor{
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

// ActorFrom retrieves the acting principal, if any.
func ActorFrom(c *gin.Context) (Actor, bool) {
	if c == nil {
		return Actor{}, false
	}
	value, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := value.(Actor)
	return actor, ok
}

// SetPermission records the permission code that admitted the request.
func SetPermission(c *gin.Context, code string) {
	if c == nil || code == "" {
		return
	}
	c.Set(permissionKey, code)
}

// PermissionFrom retrieves the admitting permission code, if any.
func PermissionFrom(c *gin.Context) string {
	if c == nil {
		return ""
	}
	value, ok := c.Get(permissionKey)
	if !ok {
		return ""
	}
	code, _ := value.(string)
	return code
}
