package router

import (
	"net/http"
	"strconv"
	"strings"

	"bridge-backend/internal/config"
	"bridge-backend/internal/handlers"
	"bridge-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware, driven by the cors config section.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := true
		maxAge := 3600
		if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin":  origin,
					"allowed_origins": allowedOrigins,
					"path":            c.Request.URL.Path,
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter wires the HTTP surface.
func SetupRouter(
	authHandler *handlers.AuthHandler,
	adminAuthHandler *handlers.AdminAuthHandler,
	bridgeHandler *handlers.BridgeHandler,
	adminBridgeHandler *handlers.AdminBridgeHandler,
	wsHandler *handlers.WebSocketHandler,
	readiness gin.HandlerFunc,
) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	logger := logrus.New()
	authMiddleware := middleware.NewAuthMiddleware(logger)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(logger)

	var allowedIPs []string
	if config.AppConfig != nil {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)

	// ============ Health & Metrics ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/ready", readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ WebSocket ============
	r.GET("/ws", gin.WrapF(wsHandler.HandleWebSocket))

	// ============ Public auth routes ============
	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.GET("/nonce", authHandler.GenerateNonceHandler)
			auth.POST("/authenticate", authHandler.AuthenticateHandler)
		}

		// ============ Bridge routes (JWT protected) ============
		bridge := api.Group("/bridge", authMiddleware.RequireAuth())
		{
			bridge.POST("/deposits", bridgeHandler.SubmitDepositHandler)
			bridge.POST("/withdrawals", bridgeHandler.SubmitWithdrawalHandler)
			bridge.GET("/transactions", bridgeHandler.ListTransactionsHandler)
			bridge.GET("/transactions/:id", bridgeHandler.GetTransactionHandler)
			bridge.GET("/transactions/:id/history", bridgeHandler.GetTransitionHistoryHandler)
			bridge.DELETE("/transactions/:id", bridgeHandler.CancelTransactionHandler)
		}

		// ============ Admin routes (IP allowlist + admin JWT) ============
		admin := api.Group("/admin", localhostOnly.Restrict())
		{
			admin.POST("/login", adminAuthHandler.AdminLoginHandler)
			admin.POST("/totp/generate", adminAuthHandler.GenerateTOTPSecretHandler)

			protected := admin.Group("/bridge", adminAuthMiddleware.RequireAdminAuth())
			{
				protected.GET("/open", adminBridgeHandler.ListOpenTransactionsHandler)
				protected.POST("/transactions/:id/fail", adminBridgeHandler.ForceFailHandler)
			}
		}
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api/v1 endpoints for available APIs",
		})
	})

	return r
}
