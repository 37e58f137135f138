package authUtils

import (
	"errors"
	"fmt"
	"time"

	"civicservice-be/models"

	"github.com/dgrijalva/jwt-go"
)

// TokenConfig signs and checks HS256 tokens
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Claims carried by an access token
type Claims struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.StandardClaims
}

// GenerateToken generates a JWT token for the user, returning it with its expiry
func (tc TokenConfig) GenerateToken(user *models.User, now time.Time) (string, time.Time, error) {
	if tc.Secret == "" {
		return "", time.Time{}, fmt.Errorf("JWT_SECRET environment variable is not set")
	}

	ttl := tc.TTL
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user.ID,
		Email:  user.Email,
		Roles:  models.RoleNames(user.Roles),
		StandardClaims: jwt.StandardClaims{
			Subject:   user.ID,
			Issuer:    tc.Issuer,
			Audience:  tc.Audience,
			IssuedAt:  now.Unix(),
			ExpiresAt: expiresAt.Unix(),
		},
	})

	tokenString, err := token.SignedString([]byte(tc.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates signature, expiry, issuer and audience
func (tc TokenConfig) ParseToken(tokenString string) (*Claims, error) {
	if tc.Secret == "" {
		return nil, errors.New("JWT secret not configured")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tc.Secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if tc.Issuer != "" && !claims.VerifyIssuer(tc.Issuer, true) {
		return nil, errors.New("unexpected token issuer")
	}
	if tc.Audience != "" && !claims.VerifyAudience(tc.Audience, true) {
		return nil, errors.New("unexpected token audience")
	}
	if claims.UserID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
