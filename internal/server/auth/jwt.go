// Package auth issues and validates the bearer tokens returned by setup and
// login.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/medkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the account id and role next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid"`
	Role      string `json:"role"`
}

func GenerateToken(accountID, role string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		AccountID: accountID,
		Role:      role,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates tokenString and returns its claims. Expired tokens map
// to common.ErrTokenExpired, every other failure to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.AccountID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
