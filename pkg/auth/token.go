// Package auth mints and verifies the bearer tokens the sync server issues to
// paired devices.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintDeviceToken issues a signed JWT for a paired device. A zero TokenTTL
// yields a token without expiry; revocation is tracked server side.
func MintDeviceToken(cfg config.DevServerConfig, now time.Time, payload DeviceTokenPayload) (string, error) {
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("jwt secret is required")
	}
	if cfg.JWTIssuer == "" {
		return "", fmt.Errorf("jwt issuer is required")
	}
	if cfg.TokenTTL < 0 {
		return "", fmt.Errorf("token ttl must not be negative")
	}
	if strings.TrimSpace(payload.DeviceID) == "" {
		return "", fmt.Errorf("device id is required")
	}
	if strings.TrimSpace(payload.BranchID) == "" {
		return "", fmt.Errorf("branch id is required")
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := DeviceClaims{
		DeviceID: payload.DeviceID,
		BranchID: payload.BranchID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cfg.JWTIssuer,
			Subject:  payload.DeviceID,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       jti,
		},
	}
	if cfg.TokenTTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TokenTTL))
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseDeviceToken validates the JWT string and returns typed claims.
func ParseDeviceToken(cfg config.DevServerConfig, tokenString string) (*DeviceClaims, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	claims := &DeviceClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.JWTIssuer),
	)
	if err != nil {
		return nil, err
	}
	if claims.DeviceID == "" {
		return nil, fmt.Errorf("token has no device id")
	}
	return claims, nil
}
