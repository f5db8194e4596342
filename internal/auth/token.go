package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	Username string
}

// BuildJWTString signs a session token for the admin. A non-positive ttl
// produces a token without expiry.
func BuildJWTString(admin string, secret []byte, ttl time.Duration) (string, error) {

	registered := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(time.Now())}
	if ttl > 0 {
		registered.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: registered,

		Username: admin,
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetUser(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", fmt.Errorf("token invalid")
	}
	if claims.Username == "" {
		return "", fmt.Errorf("token has no user")
	}

	return claims.Username, nil
}
