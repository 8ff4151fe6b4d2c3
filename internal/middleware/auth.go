package middleware

import (
	"net/http"
	"strings"

	"bridge-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware validates user JWTs.
type AuthMiddleware struct {
	logger *logrus.Logger
}

// NewAuthMiddleware creates the JWT middleware.
func NewAuthMiddleware(logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		logger: logger,
	}
}

// RequireAuth rejects requests without a valid Bearer token.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Auth failed - missing Authorization header")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"message": "Missing Authorization header. Please provide a valid JWT token.",
				"code":    "MISSING_AUTH_HEADER",
			})
			c.Abort()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Auth failed - invalid Authorization format")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization format",
				"message": "Authorization header must be in format: Bearer <token>",
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
				"message": "Token cannot be empty",
				"code":    "EMPTY_TOKEN",
			})
			c.Abort()
			return
		}

		claims, err := handlers.ValidateJWTToken(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Warn("Auth failed - token validation failed")

			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"message": err.Error(),
				"code":    "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set("user_address", claims.AccountAddress)

		a.logger.WithFields(logrus.Fields{
			"path":         c.Request.URL.Path,
			"method":       c.Request.Method,
			"user_address": claims.AccountAddress,
		}).Debug("Auth succeeded")

		c.Next()
	}
}

// OptionalAuth attaches the user to the context when a valid token is
// present, but never rejects.
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			c.Next()
			return
		}

		claims, err := handlers.ValidateJWTToken(tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Debug("Optional auth - token validation failed")
			c.Next()
			return
		}

		c.Set("user_address", claims.AccountAddress)
		c.Next()
	}
}
