// Copyright (c) 2026 the datachat authors.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See LICENSE for details.

// Package authn provides the pluggable identity boundary that fronts every
// REST and WebSocket entry point. datachat's own logic never validates
// credentials directly — it asks a Provider for the caller's user ID and
// treats everything else as an implementation detail of that Provider.
//
// The open source default, NopProvider, resolves every credential to a
// single local user so the service runs without any identity
// infrastructure. A real deployment supplies its own Provider, such as
// JWTProvider, via the service constructor.
package authn

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by a Provider when a credential is missing,
// malformed, or does not resolve to a user.
var ErrUnauthorized = errors.New("unauthorized")

// Identity is the caller information a Provider resolves a credential to.
type Identity struct {
	UserID string
}

// Provider validates a bearer credential and returns the caller's identity.
// Implementations must be safe for concurrent use.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (Identity, error)
}

// NopProvider is the open source default: every credential (including an
// empty one) resolves to the same local user. Use this when the service
// runs single-tenant behind a trusted network boundary.
type NopProvider struct {
	UserID string
}

// NewNopProvider returns a NopProvider resolving to "local-user".
func NewNopProvider() *NopProvider {
	return &NopProvider{UserID: "local-user"}
}

func (p *NopProvider) Authenticate(_ context.Context, _ string) (Identity, error) {
	return Identity{UserID: p.UserID}, nil
}

// JWTProvider validates HS256 bearer tokens and extracts the user ID from
// the "sub" claim. It is the enrichment path for deployments that already
// issue JWTs to their frontend.
type JWTProvider struct {
	secret []byte
}

// NewJWTProvider builds a JWTProvider that verifies tokens with the given
// HMAC secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret)}
}

func (p *JWTProvider) Authenticate(_ context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrUnauthorized
	}

	token, err := jwt.Parse(credential, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: sub}, nil
}
