package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taxi-dispatch/internal/domain"
)

const issuer = "taxi-dispatch"

// Claims identifies the caller. Subject is the internal client or driver id,
// or the operator name for admins.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret      []byte
	adminSecret []byte
	ttl         time.Duration
	now         func() time.Time
}

type Option func(*Authenticator)

// WithAdminSecret enables admin token issuance for callers that present
// secret. Without it no admin token can be issued.
func WithAdminSecret(secret string) Option {
	return func(a *Authenticator) { a.adminSecret = []byte(secret) }
}

func New(secret string, ttl time.Duration, opts ...Option) *Authenticator {
	a := &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AuthorizeAdmin checks the operator secret presented with an admin token
// request.
func (a *Authenticator) AuthorizeAdmin(presented string) error {
	if len(a.adminSecret) == 0 {
		return fmt.Errorf("admin tokens disabled: %w", domain.ErrForbidden)
	}
	if subtle.ConstantTimeCompare(a.adminSecret, []byte(presented)) != 1 {
		return fmt.Errorf("admin secret mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

func (a *Authenticator) IssueToken(subject, role string) (string, time.Time, error) {
	if subject == "" || !domain.ValidateRole(role) {
		return "", time.Time{}, fmt.Errorf("subject %q role %q: %w", subject, role, domain.ErrInvalid)
	}
	now := a.now().UTC()
	exp := now.Add(a.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	str, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return str, exp, nil
}

// ParseToken verifies signature, expiry and issuer. Every failure wraps
// domain.ErrUnauthorized.
func (a *Authenticator) ParseToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrUnauthorized)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || !domain.ValidateRole(claims.Role) {
		return nil, fmt.Errorf("invalid token: %w", domain.ErrUnauthorized)
	}
	return claims, nil
}

func ExtractBearerToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type ctxKey struct{}

func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	v := ctx.Value(ctxKey{})
	claims, ok := v.(*Claims)
	return claims, ok
}
