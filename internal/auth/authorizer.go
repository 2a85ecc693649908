// Package auth decides whether a connection may join a child's slot.
package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ThilakNarasimhamurthy/CogniShape/internal/model"
	"github.com/ThilakNarasimhamurthy/CogniShape/internal/protocol"
)

// AnyChild in a token's child_ids grants access to every child.
const AnyChild = "*"

// Authorizer checks a bearer token against the child and role it is used for.
type Authorizer interface {
	Authorize(ctx context.Context, token, childID string, role protocol.Role) error
}

// AllowAll accepts every request. It is used when no secret is configured.
type AllowAll struct{}

// Authorize implements Authorizer.
func (AllowAll) Authorize(context.Context, string, string, protocol.Role) error {
	return nil
}

// Claims are the claims carried by a join token.
type Claims struct {
	jwt.RegisteredClaims
	ChildIDs []string `json:"child_ids"`
	// Roles limits which roles the token may join as. Empty allows both.
	Roles []string `json:"roles,omitempty"`
}

// JWTAuthorizer validates HS256 tokens.
type JWTAuthorizer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// New returns a JWTAuthorizer for secret, or AllowAll when secret is empty.
func New(secret, issuer string) Authorizer {
	if strings.TrimSpace(secret) == "" {
		return AllowAll{}
	}
	return NewJWTAuthorizer(secret, issuer, nil)
}

// NewJWTAuthorizer creates an authorizer. An empty issuer skips the issuer
// check; a nil now uses time.Now.
func NewJWTAuthorizer(secret, issuer string, now func() time.Time) *JWTAuthorizer {
	if now == nil {
		now = time.Now
	}
	return &JWTAuthorizer{secret: []byte(secret), issuer: issuer, now: now}
}

// Authorize returns model.ErrUnauthorized for a missing or invalid token and
// model.ErrForbidden for a valid token that does not cover childID and role.
func (a *JWTAuthorizer) Authorize(_ context.Context, token, childID string, role protocol.Role) error {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return fmt.Errorf("%w: token is required", model.ErrUnauthorized)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
	}

	if !slices.Contains(claims.ChildIDs, childID) && !slices.Contains(claims.ChildIDs, AnyChild) {
		return fmt.Errorf("%w: token does not cover child %q", model.ErrForbidden, childID)
	}
	if len(claims.Roles) > 0 && !slices.Contains(claims.Roles, string(role)) {
		return fmt.Errorf("%w: token does not allow role %q", model.ErrForbidden, role)
	}
	return nil
}

// Sign issues a token for claims. Used by tooling and tests.
func (a *JWTAuthorizer) Sign(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
