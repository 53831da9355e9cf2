// Package auth defines the external authenticator contract the
// gateway consumes on session creation. The JWT/password-backed
// implementation and its persistent store are deliberately out of
// scope for this module; only the interface and an anonymous fallback
// live here.
package auth

import (
	"context"

	"github.com/ewancrowle/hpsdr-gateway/internal/session"
)

// Authenticator is the external collaborator consulted when a client
// supplies a token on session creation.
type Authenticator interface {
	// ValidateToken returns the principal for a valid token, or
	// (Principal{}, false) if the token is invalid or expired. May
	// suspend (e.g. on a network call to an identity provider).
	ValidateToken(ctx context.Context, token string) (session.Principal, bool)

	// CreateAnonymousPrincipal returns the sentinel anonymous
	// principal. Never suspends.
	CreateAnonymousPrincipal() session.Principal
}

// AnonymousOnly is the trivial Authenticator used when
// security.require_authentication is false: every token is rejected,
// and anonymous principals are always available.
type AnonymousOnly struct{}

func (AnonymousOnly) ValidateToken(_ context.Context, _ string) (session.Principal, bool) {
	return session.Principal{}, false
}

func (AnonymousOnly) CreateAnonymousPrincipal() session.Principal {
	return session.Principal{Anonymous: true}
}
