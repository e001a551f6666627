package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds how long a connection token can be redeemed.
const DefaultTokenTTL = 7 * 24 * time.Hour

// SessionClaims is the payload of a connection token. Subject is the session id.
type SessionClaims struct {
	Device string `json:"device"`
	jwt.RegisteredClaims
}

// TokenConfig holds signing configuration for connection tokens.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// IssueToken signs a connection token for a session.
func IssueToken(cfg TokenConfig, sessionID, deviceID string, now time.Time) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := SessionClaims{
		Device: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ParseToken validates a connection token against now and returns its claims.
func ParseToken(cfg TokenConfig, tokenString string, now time.Time) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
