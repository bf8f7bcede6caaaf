package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/beep-industries/admin/internal/auth"
)

// Screen is one of the mutually exclusive screens a page request can get.
// The constants are declared in precedence order.
type Screen int

const (
	ScreenError Screen = iota
	ScreenLoading
	ScreenUnauthenticated
	ScreenAccessDenied
	ScreenAuthenticated
)

var screenNames = map[Screen]string{
	ScreenError:           "error",
	ScreenLoading:         "loading",
	ScreenUnauthenticated: "unauthenticated",
	ScreenAccessDenied:    "access_denied",
	ScreenAuthenticated:   "authenticated",
}

func (s Screen) String() string {
	if name, ok := screenNames[s]; ok {
		return name
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AuthState is the gate's view of one identity client snapshot. Every field
// and every HasRole call derive from that same snapshot.
type AuthState struct {
	IsAuthenticated bool       `json:"is_authenticated"`
	IsLoading       bool       `json:"is_loading"`
	Err             error      `json:"-"`
	ActiveNavigator string     `json:"active_navigator,omitempty"`
	User            *auth.User `json:"user"`
	AccessToken     string     `json:"-"`
	IsAdmin         bool       `json:"is_admin"`
	Screen          Screen     `json:"screen"`

	// SigningIn distinguishes a sign-in in progress on the loading screen.
	SigningIn bool `json:"signing_in"`

	raw    *auth.RawUser
	mapper *auth.Mapper
	client IdentityClient
}

// Login starts a redirect-based sign-in.
func (s AuthState) Login(ctx context.Context) error {
	if s.client == nil {
		return ErrNoClient
	}
	return s.client.SigninRedirect(ctx)
}

// Logout starts a redirect-based sign-out.
func (s AuthState) Logout(ctx context.Context) error {
	if s.client == nil {
		return ErrNoClient
	}
	return s.client.SignoutRedirect(ctx)
}

// SigninSilent renews the token set without a navigation and returns the
// new access token. An empty token with a nil error means the client
// resolved no user.
func (s AuthState) SigninSilent(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", ErrNoClient
	}
	user, err := s.client.SigninSilent(ctx)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}
	return user.AccessToken, nil
}

// HasRole maps the captured snapshot again and checks role membership.
func (s AuthState) HasRole(role string) bool {
	if s.mapper == nil {
		return false
	}
	return s.mapper.MapUser(s.raw).HasRole(role)
}

// SubscribeToTokenRefresh calls fn with the access token every time the
// client loads a user carrying one. The returned function removes exactly
// this subscription; calling it again, or after the client is closed, is a
// no-op.
func (s AuthState) SubscribeToTokenRefresh(fn func(accessToken string)) func() {
	if s.client == nil || fn == nil {
		return func() {}
	}

	id := s.client.AddUserLoaded(func(user *auth.RawUser) {
		if user != nil && user.AccessToken != "" {
			fn(user.AccessToken)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.client.RemoveUserLoaded(id)
		})
	}
}
