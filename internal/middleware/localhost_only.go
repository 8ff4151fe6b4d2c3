package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly restricts sensitive endpoints to localhost or a configured
// IP allowlist (exact IPs or CIDR ranges).
type LocalhostOnly struct {
	logger     *logrus.Logger
	allowedIPs []string
}

// NewLocalhostOnly creates the access-restriction middleware.
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	return &LocalhostOnly{
		logger:     logger,
		allowedIPs: allowedIPs,
	}
}

// Restrict rejects requests from outside the allowlist.
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)

		if !l.isAllowedIP(clientIP) {
			// ClientIP can differ from the socket peer behind a proxy; a
			// direct loopback connection is still allowed.
			if remoteIP == clientIP || !isLocalhost(remoteIP) {
				l.logger.WithFields(logrus.Fields{
					"client_ip": clientIP,
					"remote_ip": remoteIP,
					"path":      c.Request.URL.Path,
					"method":    c.Request.Method,
				}).Warn("Reject non-whitelisted access to sensitive API")

				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"success": false,
					"error":   "This API is only accessible from allowed IP addresses",
					"code":    "IP_NOT_ALLOWED",
				})
				return
			}
		}

		c.Next()
	}
}

// isLocalhost checks if the IP is a loopback address.
func isLocalhost(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ip == "localhost" || ip == "::1"
	}
	return parsedIP.IsLoopback()
}

// isAllowedIP checks the IP against the allowlist (supports CIDR).
func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	if isLocalhost(ip) {
		return true
	}
	if len(l.allowedIPs) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		for _, allowed := range l.allowedIPs {
			if ip == strings.TrimSpace(allowed) {
				return true
			}
		}
		return false
	}

	for _, allowed := range l.allowedIPs {
		allowed = strings.TrimSpace(allowed)

		if strings.Contains(allowed, "/") {
			_, ipNet, err := net.ParseCIDR(allowed)
			if err != nil {
				l.logger.WithFields(logrus.Fields{
					"allowed": allowed,
					"error":   err.Error(),
				}).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			if ipNet.Contains(parsedIP) {
				return true
			}
		} else if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(parsedIP) {
			return true
		}
	}

	l.logger.WithFields(logrus.Fields{
		"ip":         ip,
		"allowedIPs": l.allowedIPs,
	}).Warn("IP not found in whitelist - rejecting access")
	return false
}
