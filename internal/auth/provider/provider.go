package provider

import (
	"context"

	"github.com/beep-industries/admin/internal/auth"
)

// OAuthProvider defines the contract the identity client drives.
// Implementations return identity facts only and must not perform
// session management or authorization decisions.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "keycloak").
	Name() string

	// AuthCodeURL returns the authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// ExchangeCode exchanges the authorization code for the signed-in user.
	ExchangeCode(
		ctx context.Context,
		code string,
		codeVerifier string,
	) (*auth.RawUser, error)

	// Refresh runs the refresh-token grant and returns the renewed user.
	Refresh(ctx context.Context, refreshToken string) (*auth.RawUser, error)

	// EndSessionURL returns where the browser goes to sign out at the
	// provider. idTokenHint may be empty.
	EndSessionURL(idTokenHint string) string
}
