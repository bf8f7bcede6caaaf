package session

import (
	"net/http"
	"time"
)

// CookieName carries the opaque session id. It is always HttpOnly.
const CookieName = "admin_session"

type CookieOptions struct {
	Path     string // "/" when empty
	Domain   string
	Secure   bool
	SameSite http.SameSite // Lax when unset
}

func (o CookieOptions) cookie(value string) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.SameSite,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// SetCookie hands sessionID to the browser until expiresAt.
func SetCookie(w http.ResponseWriter, sessionID string, expiresAt time.Time, opts CookieOptions) {
	c := opts.cookie(sessionID)
	c.Expires = expiresAt
	http.SetCookie(w, c)
}

// ReadCookie returns the session id carried by the request, if any.
func ReadCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
