package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims mirrors the user claims issued by the auth handler.
type JWTClaims struct {
	AccountAddress string `json:"account_address"`
	jwt.RegisteredClaims
}

func main() {
	account := flag.String("account", "049d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7", "target-chain account address")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "bridge-jwt-secret-change-me"
		fmt.Println("⚠️  JWT_SECRET not set, using the development default")
	}

	now := time.Now()
	claims := JWTClaims{
		AccountAddress: *account,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "bridge-backend",
			Subject:   *account,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Claims:")
	fmt.Printf("  Account Address: %s\n", *account)
	fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  curl -H \"Authorization: Bearer %s\" http://localhost:8080/api/v1/bridge/transactions\n", tokenString)
}
