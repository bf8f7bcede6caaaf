package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const providerName = "keycloak"

// Config holds what the provider needs from the environment.
type Config struct {
	// Authority is the realm issuer URL, e.g.
	// https://sso.example.com/realms/admin
	Authority     string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	PostLogoutURL string
}

// Provider implements OAuth + OIDC authentication against Keycloak.
// It returns identity facts only; no user/session decisions are made here.
type Provider struct {
	oauthConfig   *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	endSession    string
	clientID      string
	postLogoutURL string
}

// New initializes a Keycloak OIDC provider using discovery.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Authority == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	oidcProvider, err := oidc.NewProvider(ctx, cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("failed to init keycloak oidc provider: %w", err)
	}

	var discovery struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := oidcProvider.Claims(&discovery); err != nil {
		return nil, fmt.Errorf("failed to read keycloak discovery document: %w", err)
	}

	p := newProvider(cfg, oidcProvider.Endpoint(), discovery.EndSessionEndpoint)
	p.verifier = oidcProvider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	logger.Info("keycloak provider ready", map[string]any{
		"issuer":      cfg.Authority,
		"client_id":   cfg.ClientID,
		"end_session": discovery.EndSessionEndpoint != "",
	})

	return p, nil
}

func newProvider(cfg Config, ep oauth2.Endpoint, endSession string) *Provider {
	return &Provider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     ep,
			Scopes: []string{
				oidc.ScopeOpenID,
				"profile",
				"email",
			},
		},
		endSession:    endSession,
		clientID:      cfg.ClientID,
		postLogoutURL: cfg.PostLogoutURL,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL builds the authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode exchanges the authorization code and returns the signed-in user.
func (p *Provider) ExchangeCode(
	ctx context.Context,
	code string,
	codeVerifier string,
) (*auth.RawUser, error) {
	token, err := p.oauthConfig.Exchange(
		ctx,
		code,
		oauth2.VerifierOption(codeVerifier),
	)
	if err != nil {
		logger.Error("keycloak token exchange failed", map[string]any{
			"error": err,
		})
		return nil, fmt.Errorf("keycloak token exchange failed: %w", err)
	}

	return p.userFromToken(ctx, token, nil)
}

// Refresh renews the token set. Keycloak may omit the ID token on
// refresh, in which case the previous profile is rebuilt from the new
// access token.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*auth.RawUser, error) {
	if refreshToken == "" {
		return nil, errors.New("keycloak refresh requires a refresh token")
	}

	src := p.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		logger.Error("keycloak token refresh failed", map[string]any{
			"error": err,
		})
		return nil, fmt.Errorf("keycloak token refresh failed: %w", err)
	}

	return p.userFromToken(ctx, token, &auth.Profile{})
}

// EndSessionURL returns the RP-initiated logout URL, or the post-logout
// URL itself when the realm does not advertise an end_session_endpoint.
func (p *Provider) EndSessionURL(idTokenHint string) string {
	if p.endSession == "" {
		return p.postLogoutURL
	}

	q := url.Values{}
	q.Set("client_id", p.clientID)
	if p.postLogoutURL != "" {
		q.Set("post_logout_redirect_uri", p.postLogoutURL)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	return p.endSession + "?" + q.Encode()
}

// userFromToken verifies the ID token when present and builds the raw
// user. fallback is used as the base profile when no ID token came back.
func (p *Provider) userFromToken(ctx context.Context, token *oauth2.Token, fallback *auth.Profile) (*auth.RawUser, error) {
	profile := fallback

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken != "" {
		idToken, err := p.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			logger.Error("keycloak id_token verification failed", map[string]any{
				"error": err,
			})
			return nil, fmt.Errorf("keycloak id_token verification failed: %w", err)
		}

		var claims auth.Profile
		if err := idToken.Claims(&claims); err != nil {
			return nil, fmt.Errorf("keycloak id_token claims parse failed: %w", err)
		}
		profile = &claims
	}

	if profile == nil {
		return nil, errors.New("keycloak did not return id_token")
	}

	mergeAccessTokenClaims(profile, token.AccessToken)

	user := &auth.RawUser{
		Profile:      profile,
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		user.Scope = scope
	}

	logger.Info("keycloak user loaded", map[string]any{
		"subject_present": profile.Subject != "",
		"email_present":   profile.Email != "",
		"email_verified":  profile.EmailVerified,
		"expires_at":      token.Expiry.Unix(),
	})

	return user, nil
}

// accessClaims are the parts of a Keycloak access token the dashboard reads.
type accessClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string                 `json:"preferred_username"`
	Email             string                 `json:"email"`
	EmailVerified     bool                   `json:"email_verified"`
	RealmAccess       *auth.Access           `json:"realm_access"`
	ResourceAccess    map[string]auth.Access `json:"resource_access"`
	Roles             []string               `json:"roles"`
}

// mergeAccessTokenClaims fills profile gaps from the access token. Keycloak
// puts realm_access and resource_access in the access token only, unless a
// client mapper copies them into the ID token. The token comes straight
// from the token endpoint and is read without signature verification.
func mergeAccessTokenClaims(profile *auth.Profile, accessToken string) {
	if accessToken == "" {
		return
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		// Opaque access tokens carry no claims.
		logger.Debug("access token is not a JWT", map[string]any{"error": err})
		return
	}

	if profile.Subject == "" {
		profile.Subject = claims.Subject
	}
	if profile.Email == "" {
		profile.Email = claims.Email
		profile.EmailVerified = claims.EmailVerified
	}
	if profile.PreferredUsername == "" {
		profile.PreferredUsername = claims.PreferredUsername
	}
	if profile.RealmAccess == nil {
		profile.RealmAccess = claims.RealmAccess
	}
	if profile.ResourceAccess == nil {
		profile.ResourceAccess = claims.ResourceAccess
	}
	if profile.Roles == nil {
		profile.Roles = claims.Roles
	}
}
