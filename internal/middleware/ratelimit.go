package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castellan-io/castellan/internal/cache"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/logger"
	"github.com/castellan-io/castellan/pkg/response"
)

// RateLimit throttles a route group per client IP through the shared cache
// store, so the counter survives restarts and is shared across replicas. A
// nil store disables throttling.
func RateLimit(store cache.Store, prefix string, limit int64, window time.Duration) gin.HandlerFunc {
	log := logger.WithModule("ratelimit")
	return func(c *gin.Context) {
		if store == nil || limit <= 0 {
			c.Next()
			return
		}

		key := "ratelimit:" + prefix + ":" + c.ClientIP()
		count, _, err := store.IncrementWithTTL(c.Request.Context(), key, window)
		if err != nil {
			// Fail open: losing the throttle beats losing the API.
			log.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > limit {
			response.Error(c, apperrors.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
