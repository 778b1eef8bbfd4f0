// Package auth issues and verifies operator tokens for the admin endpoints.
//
// Operator tokens are HS256 JWTs signed with a shared secret. They carry the
// operator's name as subject and a scope list; the cache-flush endpoint
// requires ScopeCacheAdmin. There are no refresh tokens: operators mint a new
// token with the CLI when one expires.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Token defaults.
const (
	DefaultIssuer   = "skybrief"
	DefaultAudience = "skybrief-admin"
	DefaultTTL      = 12 * time.Hour

	// ScopeCacheAdmin allows flushing the product cache.
	ScopeCacheAdmin = "cache:admin"
)

// Token errors.
var (
	ErrInvalidToken  = errors.New("invalid operator token")
	ErrTokenExpired  = errors.New("operator token has expired")
	ErrMissingScope  = errors.New("operator token lacks required scope")
	ErrNoSigningKey  = errors.New("no signing key configured")
	ErrEmptyOperator = errors.New("operator name is required")
)

// Claims are the claims of an operator token.
type Claims struct {
	jwt.RegisteredClaims

	Scopes []string `json:"scp"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenService creates and validates operator tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	clock      clockwork.Clock
}

// TokenConfig holds configuration for the token service.
type TokenConfig struct {
	SigningKey string

	// Issuer and Audience default to DefaultIssuer and DefaultAudience.
	Issuer   string
	Audience string

	// TTL is the lifetime of issued tokens. Default: DefaultTTL.
	TTL time.Duration

	Clock clockwork.Clock
}

// NewTokenService creates a token service.
func NewTokenService(cfg TokenConfig) *TokenService {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &TokenService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        cfg.TTL,
		clock:      cfg.Clock,
	}
}

// Issue signs a token for operator with the given scopes.
func (s *TokenService) Issue(operator string, scopes ...string) (string, time.Time, error) {
	if len(s.signingKey) == 0 {
		return "", time.Time{}, ErrNoSigningKey
	}
	if operator == "" {
		return "", time.Time{}, ErrEmptyOperator
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   operator,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID(),
		},
		Scopes: scopes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing operator token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if len(s.signingKey) == 0 {
		return nil, ErrNoSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func tokenID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
