package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrUnauthenticated = errors.New("missing or invalid identity token")

// Identity is the opaque rider identity used to stamp riderId and to
// authorize history and rating access.
type Identity struct {
	ID    string
	Phone string
}

// Provider verifies bearer tokens and extracts the rider identity from
// their claims.
type Provider struct {
	secret []byte
}

func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret)}
}

// FromToken parses and verifies an HMAC-signed token carrying rider_id
// and optionally phone claims.
func (p *Provider) FromToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthenticated
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	id, ok := claims["rider_id"].(string)
	if !ok || id == "" {
		return Identity{}, ErrUnauthenticated
	}
	ident := Identity{ID: id}
	if phone, ok := claims["phone"].(string); ok {
		ident.Phone = phone
	}
	return ident, nil
}

// IssueToken mints a token for the rider, mainly for tooling and tests.
func (p *Provider) IssueToken(ident Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"rider_id": ident.ID,
		"exp":      time.Now().Add(ttl).Unix(),
	}
	if ident.Phone != "" {
		claims["phone"] = ident.Phone
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

type contextKey struct{}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, ident)
}

// FromContext returns the identity placed by the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(contextKey{}).(Identity)
	return ident, ok
}

// Middleware rejects requests without a valid bearer token and injects
// the verified identity into the request context.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if raw == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		raw = strings.TrimPrefix(raw, "Bearer ")
		ident, err := p.FromToken(raw)
		if err != nil {
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
	})
}
