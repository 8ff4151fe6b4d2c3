package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"bridge-backend/internal/config"
	"bridge-backend/internal/dto"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthHandler issues and validates user tokens.
type AuthHandler struct{}

type AuthRequest = dto.AuthRequest
type AuthResponse = dto.AuthResponse
type JWTClaims = dto.JWTClaims

// NewAuthHandler creates the auth handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GenerateNonceHandler returns a fresh nonce message for the client to sign.
func (h *AuthHandler) GenerateNonceHandler(c *gin.Context) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to generate nonce",
		})
		return
	}

	nonceStr := hex.EncodeToString(nonce)
	timestamp := time.Now().Unix()
	message := fmt.Sprintf("Bridge Authentication\nNonce: %s\nTimestamp: %d", nonceStr, timestamp)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"nonce":     nonceStr,
		"message":   message,
		"timestamp": timestamp,
	})
}

// AuthenticateHandler verifies the signed nonce and issues a JWT bound to the
// caller's target-chain account address.
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AuthResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if !h.validateSignature(req.AccountAddress, req.Message, req.Signature) {
		c.JSON(http.StatusUnauthorized, AuthResponse{
			Success: false,
			Message: "Signature verification failed",
		})
		return
	}

	account := normalizeAccountAddress(req.AccountAddress)

	token, err := h.generateJWTToken(account)
	if err != nil {
		log.Printf("❌ Failed to generate JWT: %v", err)
		c.JSON(http.StatusInternalServerError, AuthResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	log.Printf("✅ User authenticated: account=%s", account)

	c.JSON(http.StatusOK, AuthResponse{
		Success: true,
		Token:   token,
		Message: "Authentication successful",
	})
}

// validateSignature checks the account signature over the nonce message.
// TODO: verify against the account contract's is_valid_signature entry point
// once the signer gateway exposes a verification endpoint.
func (h *AuthHandler) validateSignature(accountAddress, message, signature string) bool {
	if len(accountAddress) < 10 || len(signature) < 10 || message == "" {
		return false
	}

	log.Printf("🔐 Validating signature: account=%s, message_len=%d, sig_len=%d",
		accountAddress, len(message), len(signature))
	return true
}

// normalizeAccountAddress lowercases and strips the 0x prefix so the same
// account always maps to the same user id.
func normalizeAccountAddress(address string) string {
	normalized := strings.ToLower(strings.TrimSpace(address))
	return strings.TrimPrefix(normalized, "0x")
}

func jwtSecret() []byte {
	if config.AppConfig != nil && config.AppConfig.JWT.Secret != "" {
		return []byte(config.AppConfig.JWT.Secret)
	}
	return []byte("bridge-jwt-secret-change-me")
}

func (h *AuthHandler) generateJWTToken(accountAddress string) (string, error) {
	issuer := "bridge-backend"
	ttl := 24 * time.Hour
	if config.AppConfig != nil {
		if config.AppConfig.JWT.Issuer != "" {
			issuer = config.AppConfig.JWT.Issuer
		}
		if config.AppConfig.JWT.TTLHours > 0 {
			ttl = time.Duration(config.AppConfig.JWT.TTLHours) * time.Hour
		}
	}

	now := time.Now()
	claims := JWTClaims{
		AccountAddress: accountAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   accountAddress,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtSecret())
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateJWTToken validates a user JWT (used by middleware and the
// WebSocket handler).
func ValidateJWTToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
