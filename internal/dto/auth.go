package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// AuthRequest authentication request structure
type AuthRequest struct {
	AccountAddress string `json:"account_address" binding:"required"` // target-chain account address (64 hex chars)
	Message        string `json:"message" binding:"required"`         // message that was signed (from /auth/nonce)
	Signature      string `json:"signature" binding:"required"`       // account signature over the message
}

// AuthResponse authentication response structure
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// JWTClaims JWT claims structure
type JWTClaims struct {
	AccountAddress string `json:"account_address"` // target-chain account address
	jwt.RegisteredClaims
}
