// Package auth decodes the shopper's bearer token. The storefront forwards
// the token to the backend untouched; it only reads the user id and expiry.
package auth

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Christian112b/InonicApp/pkg/middleware"
)

// Claims are the fields the backend puts in its tokens.
type Claims struct {
	UserID  userID `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// userID accepts the id as a JSON string or number.
type userID string

func (u *userID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	*u = userID(n.String())
	return nil
}

// TokenParser reads tokens. With a secret it checks the HMAC signature;
// without one the token is decoded as-is. Expiry is never enforced here:
// callers decide what an expired token means.
type TokenParser struct {
	secret []byte
}

// NewTokenParser creates a parser. An empty secret skips signature checks.
func NewTokenParser(secret string) *TokenParser {
	p := &TokenParser{}
	if secret != "" {
		p.secret = []byte(secret)
	}
	return p
}

// Parse decodes token into middleware claims.
func (p *TokenParser) Parse(token string) (*middleware.Claims, error) {
	claims := &Claims{}

	if p.secret == nil {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("decode token: %w", err)
		}
	} else {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		)
		if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return p.secret, nil
		}); err != nil {
			return nil, fmt.Errorf("verify token: %w", err)
		}
	}

	out := &middleware.Claims{UserID: string(claims.UserID)}
	if out.UserID == "" {
		out.UserID = claims.Subject
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
