// Package auth issues and verifies the bearer tokens used by operator
// endpoints. Device authentication is separate and lives in the challenge
// package.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openvelo/openvelo/internal/common"
)

type Claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub_id"`
}

// GenerateToken mints an HS256 operator token for the given subject.
func GenerateToken(subject string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Subject: subject,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// SubjectFromToken validates the token signature and expiry and returns
// the embedded subject. Any failure maps to common.ErrInvalidToken.
func SubjectFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrInvalidToken
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.Subject, nil
}
