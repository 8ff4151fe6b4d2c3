package handlers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"bridge-backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthHandler authenticates operators against the configured
// username + bcrypt password hash + TOTP.
type AdminAuthHandler struct {
	jwtSecret []byte
}

// AdminLoginRequest admin login request
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse admin login response
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminJWTClaims admin JWT claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminAuthHandler creates the admin auth handler.
func NewAdminAuthHandler() *AdminAuthHandler {
	return &AdminAuthHandler{jwtSecret: adminJWTSecret()}
}

func adminJWTSecret() []byte {
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	logrus.Warn("⚠️ ADMIN_JWT_SECRET not set, using default secret; set it in production")
	return []byte("bridge-admin-jwt-secret-change-me")
}

// AdminLoginHandler validates credentials and issues an admin token.
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	adminCfg := config.AppConfig.Admin
	if adminCfg.PasswordHash == "" || adminCfg.TOTPSecret == "" {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Server misconfiguration: admin credentials not set",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	expectedUsername := adminCfg.Username
	if expectedUsername == "" {
		expectedUsername = "admin"
	}

	// Generic error message regardless of which check failed.
	if req.Username != expectedUsername ||
		bcrypt.CompareHashAndPassword([]byte(adminCfg.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, adminCfg.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := h.generateAdminJWTToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler generates a TOTP secret for initial setup. Only
// available while no secret is configured.
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if config.AppConfig.Admin.TOTPSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured",
		})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Bridge Admin",
		AccountName: "admin@bridge",
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret to the admin.totpSecret config key and use it to generate TOTP codes.",
	})
}

func (h *AdminAuthHandler) generateAdminJWTToken(username string) (string, error) {
	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "bridge-backend-admin",
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken validates an admin JWT.
func ValidateAdminJWTToken(tokenString string) (*AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return adminJWTSecret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// HashAdminPassword produces the bcrypt hash stored in configuration.
func HashAdminPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
