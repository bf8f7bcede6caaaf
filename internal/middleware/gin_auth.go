package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/logger"

	"github.com/gin-gonic/gin"
)

// GinRequirePage adapts the net/http page gate to Gin.
func GinRequirePage(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		auth.RequirePage(next).ServeHTTP(c.Writer, c.Request)

		// If the gate already answered, stop the Gin chain
		if c.Writer.Written() {
			c.Abort()
			return
		}
	}
}

// GinRequireAdmin guards JSON endpoints. It never starts a sign-in:
// anonymous sessions get 401 and authenticated non-admins get 403.
func GinRequireAdmin(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		entry, err := auth.Acquire(c.Writer, c.Request, false)
		if errors.Is(err, ErrNoSession) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if err != nil {
			logger.Error("failed to resolve session", map[string]any{"error": err})
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		state := entry.Gate.State()
		expired := entry.Client.Snapshot().User.Expired(time.Now())

		if !state.IsAuthenticated || expired {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		if !state.HasRole(gate.AdminRole) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		ctx := context.WithValue(c.Request.Context(), authStateKey, state)
		ctx = context.WithValue(ctx, entryKey, entry)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
