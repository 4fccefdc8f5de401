// Package auth issues and verifies the operator tokens that guard the ops
// endpoints. Tokens are HS256 JWTs carrying a list of scopes.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Operator scopes.
const (
	// ScopeOpsRead allows reading upstream health and cache stats.
	ScopeOpsRead = "ops:read"

	// ScopeCacheWrite allows invalidating the live cache.
	ScopeCacheWrite = "cache:write"
)

// DefaultTokenTTL is used when Issue is given no ttl.
const DefaultTokenTTL = 12 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid operator token")
	ErrTokenExpired = errors.New("operator token has expired")
	ErrMissingScope = errors.New("operator token lacks required scope")
	ErrNoSigningKey = errors.New("operator signing key is not configured")
)

// Claims are the claims carried by an operator token.
type Claims struct {
	jwt.RegisteredClaims

	Scopes []string `json:"scp"`
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenConfig configures a TokenService.
type TokenConfig struct {
	// SigningKey is the shared HS256 secret. An empty key rejects every token.
	SigningKey string

	// Issuer and Audience are stamped into and required on every token.
	Issuer   string
	Audience string

	// Now overrides time.Now.
	Now func() time.Time
}

// TokenService issues and verifies operator tokens.
type TokenService struct {
	key      []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenService creates a new token service.
func NewTokenService(cfg TokenConfig) *TokenService {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "windspot"
	}
	audience := cfg.Audience
	if audience == "" {
		audience = "windspot-ops"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		key:      []byte(cfg.SigningKey),
		issuer:   issuer,
		audience: audience,
		now:      now,
	}
}

// Enabled reports whether a signing key is configured.
func (s *TokenService) Enabled() bool {
	return len(s.key) > 0
}

// Issue signs a token for subject with the given scopes.
func (s *TokenService) Issue(subject string, scopes []string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSigningKey
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        tokenID(),
		},
		Scopes: scopes,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns its claims.
func (s *TokenService) Verify(token string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrNoSigningKey
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func tokenID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
