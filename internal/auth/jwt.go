// Package auth validates the bearer tokens presented to the API. Tokens are
// issued by the identity service; Issue exists for local development and
// tests.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/telecare/telecare/internal/user"
)

// AccessTokenExpiry is the lifetime of tokens minted by Issue.
const AccessTokenExpiry = 1 * time.Hour

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingSigningKey  = errors.New("jwt signing key is required")
)

// Claims are the claims carried by API access tokens.
type Claims struct {
	jwt.RegisteredClaims

	UserID string    `json:"uid"`
	Role   user.Role `json:"role"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   user.Role
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the HS256 secret.
	SigningKey string

	// Issuer is the expected iss claim, e.g. "https://auth.telecare.example".
	Issuer string

	// Audience is the expected aud claim. Default: "telecare-api"
	Audience string
}

// ConfigFromEnv reads JWT settings from the environment.
func ConfigFromEnv() JWTConfig {
	return JWTConfig{
		SigningKey: os.Getenv("JWT_SIGNING_KEY"),
		Issuer:     getEnvOrDefault("JWT_ISSUER", "https://auth.telecare.local"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", "telecare-api"),
	}
}

// JWTService validates access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}
	audience := cfg.Audience
	if audience == "" {
		audience = "telecare-api"
	}
	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   audience,
	}, nil
}

// Issue mints an access token for p.
func (s *JWTService) Issue(p Principal) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(AccessTokenExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.UserID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		UserID: p.UserID,
		Role:   p.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return token, expiresAt, nil
}

// Validate checks a token and returns the caller it identifies.
func (s *JWTService) Validate(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrAccessTokenExpired
		}
		return Principal{}, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidAccessToken
	}
	if claims.UserID == "" {
		return Principal{}, fmt.Errorf("%w: missing uid claim", ErrInvalidAccessToken)
	}
	if !claims.Role.IsValid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidAccessToken, claims.Role)
	}

	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}

func generateTokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
