// Package auth mints and validates the bearer tokens that guard the
// mutating endpoints of `yfab serve`.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/bitswalk/yfab/src/yfab/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired
	ErrExpiredToken = errors.New("token has expired")
)

// SettingJWTSecret is the settings key holding the signing secret
const SettingJWTSecret = "auth.jwt_secret"

// JWTService handles JWT token generation and validation
type JWTService struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
}

// JWTConfig holds JWT service configuration
type JWTConfig struct {
	Issuer        string
	TokenDuration time.Duration
}

// DefaultJWTConfig returns default JWT configuration
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Issuer:        "yfab",
		TokenDuration: 30 * 24 * time.Hour,
	}
}

// SettingsStore interface for getting/setting persistent settings
type SettingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// NewJWTService creates a JWT service whose secret is persisted in
// settings, generating one on first use
func NewJWTService(cfg JWTConfig, settings SettingsStore) (*JWTService, error) {
	secretKey, err := settings.GetSetting(SettingJWTSecret)
	if err != nil || secretKey == "" {
		secretKey, err = security.RandomHex(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret key: %w", err)
		}
		if err := settings.SetSetting(SettingJWTSecret, secretKey); err != nil {
			return nil, fmt.Errorf("failed to persist secret key: %w", err)
		}
	}

	return NewJWTServiceWithSecret(cfg, []byte(secretKey)), nil
}

// NewJWTServiceWithSecret creates a JWT service with a fixed secret
func NewJWTServiceWithSecret(cfg JWTConfig, secret []byte) *JWTService {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultJWTConfig().Issuer
	}
	if cfg.TokenDuration <= 0 {
		cfg.TokenDuration = DefaultJWTConfig().TokenDuration
	}
	return &JWTService{
		secretKey:     secret,
		issuer:        cfg.Issuer,
		tokenDuration: cfg.TokenDuration,
	}
}

// TokenClaims is the validated content of a token
type TokenClaims struct {
	Subject   string    `json:"subject"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token is a freshly minted token
type Token struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateToken mints a token for subject. A zero ttl uses the configured
// duration.
func (s *JWTService) GenerateToken(subject string, ttl time.Duration) (*Token, error) {
	if ttl <= 0 {
		ttl = s.tokenDuration
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &Token{Token: signedToken, Subject: subject, ExpiresAt: expiresAt}, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *JWTService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	tc := &TokenClaims{Subject: claims.Subject, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}
	return tc, nil
}
