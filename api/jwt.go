package api

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"warptrace/config"
)

const tokenIssuer = "warptrace"

// Claims is the JWT payload for an authenticated session. Username
// duplicates the subject so handlers can read it without knowing the
// registered-claim names.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// generateJWT signs a session token for username with the configured HMAC
// secret. The jti keeps two logins in the same second from producing
// identical tokens.
func generateJWT(username string, cfg *config.Config) (string, error) {
	now := time.Now()

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Auth.JWTExpiry)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(cfg.Auth.JWTSecret))
}

// validateJWT parses and verifies a session token. The parser pins the
// algorithm to HS256; accepting whatever method a token announces would
// let an attacker downgrade to "none" or swap in an asymmetric key.
func validateJWT(tokenString string, cfg *config.Config) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
