// Package auth issues and checks the bearer tokens carried by gateway requests.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"impact-gateway/internal/config"
	"impact-gateway/internal/model"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Authority issues tokens for users and recovers the user from a token.
type Authority interface {
	Issue(user model.User) (string, error)
	Verify(token string) (*model.User, error)
	Mode() string
}

// New returns the Authority selected by cfg.Auth.Mode.
func New(cfg *config.Config) Authority {
	if cfg.Auth.Mode == config.AuthModeJWT {
		return NewJWTAuthority(cfg.Auth.JWTSecret, cfg.Auth.Issuer, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	}
	return NewMockAuthority()
}

const mockTokenPrefix = "mock_token_"

// MockAuthority accepts any non-empty bearer token. Tokens it issues have
// the form mock_token_<role>_<unix-ms>, from which the role is recovered.
type MockAuthority struct {
	now func() time.Time
}

// NewMockAuthority returns a MockAuthority using the wall clock.
func NewMockAuthority() *MockAuthority {
	return &MockAuthority{now: time.Now}
}

func (a *MockAuthority) Mode() string { return config.AuthModeBearer }

func (a *MockAuthority) Issue(user model.User) (string, error) {
	if user.Role == "" {
		return "", errors.New("issue token: role is required")
	}
	return fmt.Sprintf("%s%s_%d", mockTokenPrefix, user.Role, a.now().UnixMilli()), nil
}

// Verify accepts any non-empty token. The returned user carries a role only
// when the token is a mock token.
func (a *MockAuthority) Verify(token string) (*model.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user := &model.User{}
	if role, ok := ParseMockToken(token); ok {
		user.Role = role
	}
	return user, nil
}

// ParseMockToken returns the role encoded in a mock token.
func ParseMockToken(token string) (string, bool) {
	rest, ok := strings.CutPrefix(token, mockTokenPrefix)
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '_')
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.ParseInt(rest[i+1:], 10, 64); err != nil {
		return "", false
	}
	return rest[:i], true
}

// Claims is the JWT payload issued by JWTAuthority.
type Claims struct {
	jwt.RegisteredClaims
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// JWTAuthority issues and verifies HS256-signed tokens.
type JWTAuthority struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTAuthority returns a JWTAuthority signing with secret.
func NewJWTAuthority(secret, issuer string, ttl time.Duration) *JWTAuthority {
	return &JWTAuthority{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (a *JWTAuthority) Mode() string { return config.AuthModeJWT }

func (a *JWTAuthority) Issue(user model.User) (string, error) {
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *JWTAuthority) Verify(token string) (*model.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &model.User{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}
