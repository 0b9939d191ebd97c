// Package jwt выпускает и проверяет токены доступа вызывающего.
// Токен несёт UID пользователя, имя и роль; подпись HS256.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/billing-gate/internal/models"
)

// Maker описывает выпуск и разбор токенов.
type Maker interface {
	GenerateToken(caller models.Caller) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// CustomClaims данные вызывающего внутри токена.
type CustomClaims struct {
	UserUID  string `json:"uid"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Caller восстанавливает вызывающего из claims.
func (c *CustomClaims) Caller() *models.Caller {
	return &models.Caller{UserUID: c.UserUID, Username: c.Username, Role: c.Role}
}

// MakerImpl подписывает токены секретным ключом и ограничивает их срок жизни.
type MakerImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт MakerImpl.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// GenerateToken выпускает токен для вызывающего.
func (j *MakerImpl) GenerateToken(caller models.Caller) (string, error) {
	const op = "jwt.GenerateToken"

	if caller.UserUID == "" {
		return "", fmt.Errorf("%s: empty user uid", op)
	}
	now := j.now()
	claims := CustomClaims{
		UserUID:  caller.UserUID,
		Username: caller.Username,
		Role:     caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserUID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken проверяет подпись, алгоритм и срок жизни токена.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"

	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return j.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.UserUID == "" {
		return nil, fmt.Errorf("%s: %w", op, errors.New("token has no user uid"))
	}
	return claims, nil
}
