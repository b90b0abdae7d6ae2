package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castellan-io/castellan/internal/auditctx"
	"github.com/castellan-io/castellan/internal/models"
	"github.com/castellan-io/castellan/internal/services"
	"github.com/castellan-io/castellan/pkg/logger"
)

// Audit writes an operation-log row for every mutating request once the
// response is out, carrying the permission code that admitted it.
func Audit(audit *services.AuditService) gin.HandlerFunc {
	log := logger.WithModule("audit")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			return
		}

		entry := models.AuditLog{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			Permission: auditctx.PermissionFrom(c),
			Status:     c.Writer.Status(),
			LatencyMS:  time.Since(start).Milliseconds(),
		}
		if actor, ok := auditctx.ActorFrom(c); ok {
			entry.UserID = actor.UserID
			entry.Username = actor.Username
			entry.IPAddress = actor.IPAddress
			entry.UserAgent = actor.UserAgent
		} else {
			entry.IPAddress = c.ClientIP()
			entry.UserAgent = c.Request.UserAgent()
		}

		if err := audit.Record(c.Request.Context(), entry); err != nil {
			log.Warn("audit record failed",
				zap.String("path", entry.Path), zap.Error(err))
		}
	}
}
