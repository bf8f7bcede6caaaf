package oidcclient

import (
	"net/url"

	"github.com/beep-industries/admin/internal/utils"
	"golang.org/x/oauth2"
)

func generateState() (string, error) {
	return utils.RandomString(32)
}

// generatePKCE returns an RFC 7636 verifier and its S256 challenge.
func generatePKCE() (verifier string, challenge string) {
	verifier = oauth2.GenerateVerifier()
	return verifier, oauth2.S256ChallengeFromVerifier(verifier)
}

// HasAuthParams reports whether u is an authorization response: a code
// or an error together with a state, in the query or in the fragment.
func HasAuthParams(u *url.URL) bool {
	_, ok := authParams(u)
	return ok
}

func authParams(u *url.URL) (url.Values, bool) {
	if u == nil {
		return nil, false
	}
	if q := u.Query(); isAuthResponse(q) {
		return q, true
	}
	if u.Fragment != "" {
		if f, err := url.ParseQuery(u.Fragment); err == nil && isAuthResponse(f) {
			return f, true
		}
	}
	return nil, false
}

func isAuthResponse(v url.Values) bool {
	return (v.Get("code") != "" || v.Get("error") != "") && v.Get("state") != ""
}
