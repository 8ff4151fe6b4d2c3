package middleware

import (
	"net/http"
	"strings"

	"bridge-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware validates operator JWTs.
type AdminAuthMiddleware struct {
	logger *logrus.Logger
}

// NewAdminAuthMiddleware creates the admin auth middleware.
func NewAdminAuthMiddleware(logger *logrus.Logger) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		logger: logger,
	}
}

// RequireAdminAuth rejects requests without a valid admin token.
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Admin auth failed - missing Authorization header")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization format, need Bearer token",
				"code":    "INVALID_AUTH_FORMAT",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Empty token",
				"code":    "EMPTY_TOKEN",
			})
			c.Abort()
			return
		}

		claims, err := handlers.ValidateAdminJWTToken(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("Admin auth failed - invalid token")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		if claims.Role != "admin" {
			a.logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"role": claims.Role,
			}).Warn("Admin auth failed - insufficient permissions")

			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Insufficient permissions",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			c.Abort()
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)

		c.Next()
	}
}
