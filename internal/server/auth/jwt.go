// Package auth mints and validates session tokens and holds the
// authorization policy consulted after a token resolves to a session.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/resvault/internal/common"
)

// Claims carries the user id in sub and a per-session id in jti. Tokens do
// not expire; a session ends only on logout or restart.
type Claims struct {
	jwt.RegisteredClaims
}

func (c *Claims) UserID() string    { return c.Subject }
func (c *Claims) SessionID() string { return c.ID }

func GenerateToken(userID, sessionID string, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			ID:       sessionID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken checks the signature and returns the claims. Any failure is
// reported as common.ErrInvalidToken wrapping the parser error.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
