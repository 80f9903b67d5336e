package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Christian112b/InonicApp/pkg/httputil"
)

type contextKeyType string

const (
	tokenKey  contextKeyType = "bearer_token"
	claimsKey contextKeyType = "claims"
)

// Claims is what the storefront reads from the shopper's bearer token.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token carried an expiry that has passed.
func (c *Claims) Expired(now time.Time) bool {
	return c != nil && !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenParser decodes a bearer token into claims.
type TokenParser func(token string) (*Claims, error)

// Auth reads an optional "Authorization: Bearer" header. Requests without
// one pass through anonymously; a malformed header or an undecodable token
// is rejected with 401. Expiry is not enforced here.
func Auth(parse TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := parse(token)
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token, claims)))
		})
	}
}

// WithToken stores a bearer token and its claims in ctx.
func WithToken(ctx context.Context, token string, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, tokenKey, token)
	return context.WithValue(ctx, claimsKey, claims)
}

// TokenFromContext returns the raw bearer token, if any.
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// ClaimsFromContext returns the parsed claims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext returns the token's user id, if any.
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
