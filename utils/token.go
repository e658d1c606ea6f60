package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/hohbackend/budget_backend/config"
)

type JwtCustomClaim struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	jwt.StandardClaims
}

func jwtSecret() []byte {
	secret := config.GetSettings().APISecret
	if secret == "" {
		return []byte("Budget-Secret")
	}
	return []byte(secret)
}

func JwtGenerate(userID int, email string) (string, error) {
	lifespan := config.GetSettings().TokenHourLifespan
	if lifespan <= 0 {
		return "", errors.New("TOKEN_HOUR_LIFESPAN must be positive")
	}

	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:    userID,
		Email: email,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(time.Hour * time.Duration(lifespan)).Unix(),
			IssuedAt:  now.Unix(),
		},
	})

	return t.SignedString(jwtSecret())
}

func JwtValidate(token string) (*jwt.Token, error) {
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return jwtSecret(), nil
	})
}
