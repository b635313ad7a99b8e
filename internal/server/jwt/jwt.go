// Package jwt issues and validates the bearer tokens of sync clients.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is written to and required in every token
const Issuer = "lexisync"

// ErrInvalidToken is returned for tokens that fail parsing or validation
var ErrInvalidToken = errors.New("invalid token")

// Claims represents JWT claims of a sync client
type Claims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// Service provides JWT token generation and validation
type Service struct {
	now    func() time.Time
	secret []byte
	ttl    time.Duration
}

// NewService creates a new JWT service
// secret should be a cryptographically secure random string
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GenerateToken создает новый access token для пользователя и устройства
func (s *Service) GenerateToken(userID, deviceID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("user id cannot be empty")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken валидирует и парсит access token
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Проверяем что используется правильный алгоритм подписи
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
