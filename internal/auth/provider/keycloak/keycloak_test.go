package keycloak

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signedAccessToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func testProvider(tokenURL, endSession string) *Provider {
	return newProvider(Config{
		Authority:     "https://sso.example.com/realms/admin",
		ClientID:      "admin-ui",
		RedirectURL:   "https://admin.example.com/",
		PostLogoutURL: "https://admin.example.com/",
	}, oauth2.Endpoint{
		AuthURL:  "https://sso.example.com/realms/admin/protocol/openid-connect/auth",
		TokenURL: tokenURL,
	}, endSession)
}

func TestNew_MissingFields(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "admin-ui"})
	assert.Error(t, err)
}

func TestAuthCodeURL_CarriesPKCE(t *testing.T) {
	p := testProvider("https://sso.example.com/token", "")

	raw := p.AuthCodeURL("state-1", "challenge-1")
	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "challenge-1", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "admin-ui", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "openid")
	assert.Equal(t, "keycloak", p.Name())
}

func TestEndSessionURL(t *testing.T) {
	p := testProvider("", "https://sso.example.com/realms/admin/protocol/openid-connect/logout")

	u, err := url.Parse(p.EndSessionURL("id-token"))
	require.NoError(t, err)
	assert.Equal(t, "admin-ui", u.Query().Get("client_id"))
	assert.Equal(t, "id-token", u.Query().Get("id_token_hint"))
	assert.Equal(t, "https://admin.example.com/", u.Query().Get("post_logout_redirect_uri"))

	u, err = url.Parse(p.EndSessionURL(""))
	require.NoError(t, err)
	assert.False(t, u.Query().Has("id_token_hint"))
}

func TestEndSessionURL_NoEndpoint(t *testing.T) {
	p := testProvider("", "")
	assert.Equal(t, "https://admin.example.com/", p.EndSessionURL("id-token"))
}

func TestMergeAccessTokenClaims_FillsGaps(t *testing.T) {
	access := signedAccessToken(t, jwt.MapClaims{
		"sub":                "u-1",
		"email":              "ada@example.com",
		"email_verified":     true,
		"preferred_username": "ada",
		"realm_access":       map[string]any{"roles": []string{"admin"}},
		"resource_access":    map[string]any{"admin-ui": map[string]any{"roles": []string{"moderator"}}},
	})

	profile := &auth.Profile{Subject: "u-1", Email: "kept@example.com"}
	mergeAccessTokenClaims(profile, access)

	assert.Equal(t, "kept@example.com", profile.Email)
	assert.Equal(t, "ada", profile.PreferredUsername)
	require.NotNil(t, profile.RealmAccess)
	assert.Equal(t, []string{"admin"}, profile.RealmAccess.Roles)
	assert.Equal(t, []string{"moderator"}, profile.ResourceAccess["admin-ui"].Roles)
}

func TestMergeAccessTokenClaims_OpaqueToken(t *testing.T) {
	profile := &auth.Profile{Subject: "u-1"}
	mergeAccessTokenClaims(profile, "not-a-jwt")
	assert.Equal(t, &auth.Profile{Subject: "u-1"}, profile)
}

func TestRefresh_BuildsProfileFromAccessToken(t *testing.T) {
	access := signedAccessToken(t, jwt.MapClaims{
		"sub":                "u-1",
		"email":              "ada@example.com",
		"preferred_username": "ada",
		"realm_access":       map[string]any{"roles": []string{"admin"}},
	})

	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"token_type":    "Bearer",
			"refresh_token": "refresh-2",
			"expires_in":    300,
			"scope":         "openid profile email",
		})
	}))
	defer srv.Close()

	p := testProvider(srv.URL, "")
	user, err := p.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)

	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "refresh-1", form.Get("refresh_token"))

	assert.Equal(t, access, user.AccessToken)
	assert.Equal(t, "refresh-2", user.RefreshToken)
	assert.Equal(t, "openid profile email", user.Scope)
	assert.WithinDuration(t, time.Now().Add(300*time.Second), user.ExpiresAt, 10*time.Second)
	require.NotNil(t, user.Profile)
	assert.Equal(t, "u-1", user.Profile.Subject)
	assert.Equal(t, []string{"admin"}, user.Profile.RealmAccess.Roles)
}

func TestRefresh_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	p := testProvider(srv.URL, "")

	_, err := p.Refresh(context.Background(), "")
	assert.Error(t, err)

	_, err = p.Refresh(context.Background(), "stale")
	assert.Error(t, err)
}

func TestExchangeCode_RequiresIDToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "opaque",
			"token_type":   "Bearer",
		})
	}))
	defer srv.Close()

	p := testProvider(srv.URL, "")
	_, err := p.ExchangeCode(context.Background(), "code", "verifier")
	assert.ErrorContains(t, err, "id_token")
}
