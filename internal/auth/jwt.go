package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrEmptyToken    = errors.New("authorization token is required")
	ErrInvalidToken  = errors.New("token is invalid")
	ErrExpiredToken  = errors.New("token is expired")
	ErrRevokedToken  = errors.New("token is revoked")
	ErrWeakSecretKey = errors.New("jwt secret must be at least 32 bytes")
)

type jwtClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret    []byte
	blacklist Blacklist
}

// NewVerifier: blacklist может быть nil, тогда отзыв токенов не проверяется
func NewVerifier(secret string, blacklist Blacklist) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecretKey
	}
	return &Verifier{secret: []byte(secret), blacklist: blacklist}, nil
}

func (v *Verifier) ParseToken(ctx context.Context, token string) (Claims, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return Claims{}, ErrEmptyToken
	}

	parsedClaims := &jwtClaims{}
	parsedToken, err := jwt.ParseWithClaims(raw, parsedClaims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return Claims{}, ErrExpiredToken
	}
	if err != nil || !parsedToken.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := Claims{
		UserID:  parsedClaims.UserID,
		Name:    parsedClaims.Name,
		TokenID: parsedClaims.ID,
	}
	if claims.UserID == "" {
		claims.UserID = parsedClaims.Subject
	}
	if role, ok := ParseRole(parsedClaims.Role); ok {
		claims.Role = role
	}
	if parsedClaims.ExpiresAt != nil {
		claims.ExpiresAt = parsedClaims.ExpiresAt.Time
	}
	if parsedClaims.IssuedAt != nil {
		claims.IssuedAt = parsedClaims.IssuedAt.Time
	}

	if err := v.ValidateClaims(ctx, claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (v *Verifier) ValidateClaims(ctx context.Context, claims Claims) error {
	if claims.UserID == "" {
		return fmt.Errorf("%w: user_id missing", ErrInvalidToken)
	}
	if claims.Role == "" {
		return fmt.Errorf("%w: role missing", ErrInvalidToken)
	}
	if claims.ExpiresAt.IsZero() {
		return fmt.Errorf("%w: exp missing", ErrInvalidToken)
	}
	if time.Now().After(claims.ExpiresAt) {
		return ErrExpiredToken
	}
	if v.blacklist != nil && claims.TokenID != "" {
		revoked, err := v.blacklist.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return fmt.Errorf("check token blacklist: %w", err)
		}
		if revoked {
			return ErrRevokedToken
		}
	}
	return nil
}

// SignToken выпускает токен; используется админ-утилитой и тестами
func SignToken(userID, name string, role Role, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		UserID: userID,
		Name:   name,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
