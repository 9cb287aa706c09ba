// Package auth validates the bearer tokens issued by the external auth
// service and mints short-lived tokens for service-to-service calls.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the identity extracted from a token. Email and Name come
// straight from the token payload and need no remote lookup.
type Claims struct {
	UserID  string
	Email   string
	Name    string
	Service bool
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		// some issuers use userId instead of sub
		sub, _ = mapClaims["userId"].(string)
	}
	if sub == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{UserID: sub}
	claims.Email, _ = mapClaims["email"].(string)
	claims.Name, _ = mapClaims["name"].(string)
	claims.Service, _ = mapClaims["svc"].(bool)
	return claims, nil
}

// MintServiceToken signs a short-lived token for internal calls between the
// project and task services. Both sides share JWT_SECRET.
func MintServiceToken(secret, serviceName string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "service:" + serviceName,
		"svc": true,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(2 * time.Minute).Unix(),
	})
	return token.SignedString([]byte(secret))
}
