package handlers

import (
	"net/http"

	"bridge-backend/internal/clients"
	"bridge-backend/internal/db"

	"github.com/gin-gonic/gin"
)

// HealthCheckHandler liveness probe.
// GET /health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "bridge-backend",
		"api":     "healthy",
	})
}

// ReadinessCheckHandler readiness probe: database and message server must be
// reachable before traffic is routed here.
// GET /ready
func ReadinessCheckHandler(natsClient *clients.NATSClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		healthy := true

		sqlDB, err := db.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			checks["database"] = "unreachable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}

		if natsClient == nil || !natsClient.IsConnected() {
			checks["nats"] = "disconnected"
			healthy = false
		} else {
			checks["nats"] = "ok"
		}

		status, state := http.StatusOK, "ready"
		if !healthy {
			status, state = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{
			"status": state,
			"checks": checks,
		})
	}
}
