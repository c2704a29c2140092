package transport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/syssam/objectcore"
)

// Bearer-token session extraction (SPEC_FULL.md §D.3): spec.md's §6
// envelope carries an optional `user` field but leaves how a REST/RPC
// transport populates it unspecified. ParseBearer decodes an
// Authorization header's HMAC-signed JWT into a Session, the way
// r3e-network-service_layer's SupabaseAuth.ValidateToken decodes its
// access tokens, trimmed to the claims this engine actually consumes:
// subject, roles, tenant and space scope.

var (
	ErrMissingBearer = errors.New("transport: missing bearer token")
	ErrInvalidBearer = errors.New("transport: invalid bearer token")
)

// Authenticator verifies a bearer token string and returns the session it
// encodes.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator builds an Authenticator verifying HS256 tokens signed
// with secret (config.AuthConfig.JWTSecret).
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(strings.TrimSpace(secret))}
}

// ParseBearer strips a "Bearer " prefix (case-insensitively) from header
// and validates the remaining token.
func (a *Authenticator) ParseBearer(header string) (*Session, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingBearer
	}
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, ErrMissingBearer
	}
	return a.ParseToken(strings.TrimSpace(header[len(prefix):]))
}

// ParseToken validates an HS256-signed token and maps its claims onto a
// Session.
func (a *Authenticator) ParseToken(tokenString string) (*Session, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("transport: jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBearer, err)
	}
	if !token.Valid {
		return nil, ErrInvalidBearer
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidBearer
	}

	sess := &Session{
		UserID:   stringClaim(claims, "sub"),
		TenantID: stringClaim(claims, "tenant_id"),
		SpaceID:  stringClaim(claims, "space_id"),
		Lang:     stringClaim(claims, "lang"),
	}
	if role := stringClaim(claims, "role"); role != "" {
		sess.Roles = []string{role}
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		sess.Roles = sess.Roles[:0]
		for _, r := range roles {
			if s, ok := r.(string); ok {
				sess.Roles = append(sess.Roles, s)
			}
		}
	}
	sess.Record = objectcore.Record{"id": sess.UserID}
	if email := stringClaim(claims, "email"); email != "" {
		sess.Record["email"] = email
	}
	return sess, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
