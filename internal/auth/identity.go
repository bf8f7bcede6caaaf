package auth

import (
	"sort"
	"time"
)

// Access is a Keycloak role container (realm_access, resource_access[client]).
type Access struct {
	Roles []string `json:"roles,omitempty"`
}

// Profile holds the identity provider claims the dashboard reads.
// Every field is optional; mapping decides what is usable.
type Profile struct {
	Subject           string            `json:"sub,omitempty"`
	Email             string            `json:"email,omitempty"`
	PreferredUsername string            `json:"preferred_username,omitempty"`
	Picture           string            `json:"picture,omitempty"`
	EmailVerified     bool              `json:"email_verified,omitempty"`
	RealmAccess       *Access           `json:"realm_access,omitempty"`
	ResourceAccess    map[string]Access `json:"resource_access,omitempty"`
	Roles             []string          `json:"roles,omitempty"`
}

// RawUser is the identity client's signed-in user: the ID token profile
// plus the token set it came with. It contains facts only, no decisions.
type RawUser struct {
	Profile      *Profile  `json:"profile,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is past its expiry.
// A zero ExpiresAt never expires.
func (u *RawUser) Expired(now time.Time) bool {
	if u == nil {
		return true
	}
	return !u.ExpiresAt.IsZero() && !now.Before(u.ExpiresAt)
}

// User is the dashboard's view of a signed-in person.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Username       string     `json:"username"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	Roles          []string   `json:"roles"`
	VerifiedAt     *time.Time `json:"verified_at"`
}

// HasRole reports whether role is one of the user's roles.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleSource reads one place in the profile where roles may live.
type RoleSource func(p *Profile, clientID string) []string

var roleSources = []RoleSource{
	realmRoles,
	clientRoles,
	flatRoles,
}

func realmRoles(p *Profile, _ string) []string {
	if p.RealmAccess == nil {
		return nil
	}
	return p.RealmAccess.Roles
}

func clientRoles(p *Profile, clientID string) []string {
	if clientID == "" {
		return nil
	}
	return p.ResourceAccess[clientID].Roles
}

func flatRoles(p *Profile, _ string) []string {
	return p.Roles
}

// Mapper converts raw identity client users into Users.
type Mapper struct {
	// ClientID selects resource_access[ClientID]; empty skips client roles.
	ClientID string
	Now      func() time.Time
}

func NewMapper(clientID string) *Mapper {
	return &Mapper{ClientID: clientID, Now: time.Now}
}

// ExtractRoles returns the sorted union of realm, client and flat roles.
func (m *Mapper) ExtractRoles(raw *RawUser) []string {
	if raw == nil || raw.Profile == nil {
		return []string{}
	}

	seen := make(map[string]struct{})
	roles := []string{}
	for _, source := range roleSources {
		for _, r := range source(raw.Profile, m.ClientID) {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	sort.Strings(roles)
	return roles
}

// MapUser returns nil unless the profile has a subject and an email or
// preferred username.
func (m *Mapper) MapUser(raw *RawUser) *User {
	if raw == nil || raw.Profile == nil {
		return nil
	}

	p := raw.Profile
	if p.Subject == "" {
		return nil
	}
	if p.Email == "" && p.PreferredUsername == "" {
		return nil
	}

	username := p.PreferredUsername
	if username == "" {
		username = p.Email
	}

	var verifiedAt *time.Time
	if p.EmailVerified {
		now := m.now()
		verifiedAt = &now
	}

	return &User{
		ID:             p.Subject,
		Email:          p.Email,
		Username:       username,
		ProfilePicture: p.Picture,
		Roles:          m.ExtractRoles(raw),
		VerifiedAt:     verifiedAt,
	}
}

func (m *Mapper) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
