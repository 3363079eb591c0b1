// Package access defines the contracts a protocol layer (REST, gRPC, or
// anything else) implements against to reach the core engine. The core
// never imports a transport package; protocol layers import pkg/access
// and the collection/store packages instead. This package ships one
// reference AuthContext built on golang-jwt/jwt, modeled on a REST
// middleware's bearer-token auth handling, but no HTTP or gRPC server —
// that remains an external collaborator.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Handler is what a protocol layer calls into to run a request against
// the engine. req and resp are opaque to this package — each handler
// knows its own concrete request/response types; Decoder/Encoder turn
// wire bytes into and out of those types.
type Handler interface {
	Handle(ctx context.Context, auth AuthContext, req interface{}) (interface{}, error)
}

// AuthContext is what a Handler receives after a protocol layer has
// authenticated the caller. It carries no policy itself — Handlers
// decide what Roles or Namespace entitle a caller to do.
type AuthContext interface {
	Subject() string
	Roles() []string
	Namespace() string
	HasRole(role string) bool
}

// Decoder turns wire bytes for one request shape into a Go value a
// Handler can operate on.
type Decoder interface {
	Decode(body []byte, into interface{}) error
}

// Encoder turns a Handler's result into wire bytes.
type Encoder interface {
	Encode(v interface{}) ([]byte, error)
}

// Claims is the JWT payload a bearer token carries, mirroring a REST
// middleware's Claims shape.
type Claims struct {
	Subject   string   `json:"sub"`
	RoleList  []string `json:"roles"`
	Tenant    string   `json:"namespace,omitempty"`
	jwt.RegisteredClaims
}

type jwtAuthContext struct {
	claims *Claims
}

func (a *jwtAuthContext) Subject() string   { return a.claims.Subject }
func (a *jwtAuthContext) Roles() []string   { return a.claims.RoleList }
func (a *jwtAuthContext) Namespace() string { return a.claims.Tenant }
func (a *jwtAuthContext) HasRole(role string) bool {
	for _, r := range a.claims.RoleList {
		if r == role {
			return true
		}
	}
	return false
}

// ErrMissingBearer and ErrInvalidToken are returned by
// AuthContextFromBearer for malformed or unverifiable tokens.
var (
	ErrMissingBearer = fmt.Errorf("access: missing bearer token")
	ErrInvalidToken  = fmt.Errorf("access: invalid token")
)

// AuthContextFromBearer parses an "Authorization: Bearer <token>" header
// value into an AuthContext, verifying the HMAC signature against
// secret. Adapted from an http.Handler middleware's token-parsing branch
// into a standalone function a protocol layer calls per-request.
func AuthContextFromBearer(header string, secret []byte) (AuthContext, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, ErrMissingBearer
	}

	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &jwtAuthContext{claims: claims}, nil
}

// IssueToken mints a bearer token for subject, used by tests and
// operator tooling rather than by any request path.
func IssueToken(subject string, roles []string, namespace string, secret []byte, ttl time.Duration) (string, error) {
	claims := &Claims{
		Subject:  subject,
		RoleList: roles,
		Tenant:   namespace,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vectorizer",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
