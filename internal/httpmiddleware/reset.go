package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Resetter advances the quota month when it is due.
type Resetter interface {
	MaybeReset(ctx context.Context) (bool, error)
}

// MonthlyReset runs the reset check ahead of every request. A failed check
// fails the request.
func MonthlyReset(r Resetter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := r.MaybeReset(c.Request.Context()); err != nil {
			log.Error("monthly reset check failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "monthly reset failed"})
			return
		}
		c.Next()
	}
}
