// Package auth verifies caller JWTs and exposes the authenticated principal
// to handlers. Identity itself lives in an external service; this package
// only trusts its signed tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/havenmind/booking/internal/apperr"
)

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID string
	Role   Role
}

// IsParticipant reports whether the principal may act on a resource owned by
// the given provider/client pair. Admins always may.
func (p Principal) IsParticipant(providerID, clientID string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.UserID == providerID || p.UserID == clientID
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier parses HS256 bearer tokens signed with the shared platform secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse validates the token signature and expiry and extracts the principal.
func (v *Verifier) Parse(tokenString string) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, apperr.Forbidden("invalid or expired token")
	}
	if c.Subject == "" {
		return Principal{}, apperr.Forbidden("token missing subject")
	}
	role := Role(c.Role)
	switch role {
	case RoleClient, RoleProvider, RoleAdmin:
	default:
		return Principal{}, apperr.Forbidden("unknown role %q", c.Role)
	}
	return Principal{UserID: c.Subject, Role: role}, nil
}

type ctxKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// Middleware rejects requests without a valid bearer token and stores the
// principal on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
			return
		}
		p, err := v.Parse(token)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
	})
}
