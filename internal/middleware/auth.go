package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/auth/registry"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/session"
)

// DefaultRenewWindow is how close to expiry a page request renews the
// access token silently.
const DefaultRenewWindow = 60 * time.Second

var ErrNoSession = errors.New("middleware: no session cookie")

// unexported, collision-proof context keys
type authStateContextKeyType struct{}
type entryContextKeyType struct{}

var (
	authStateKey = authStateContextKeyType{}
	entryKey     = entryContextKeyType{}
)

// AuthStateFromContext extracts the gate state the request was served with.
func AuthStateFromContext(ctx context.Context) (gate.AuthState, bool) {
	state, ok := ctx.Value(authStateKey).(gate.AuthState)
	return state, ok
}

// EntryFromContext extracts the session's identity client and gate.
func EntryFromContext(ctx context.Context) (*registry.Entry, bool) {
	e, ok := ctx.Value(entryKey).(*registry.Entry)
	return e, ok
}

// ScreenRenderer writes the response for a request that did not reach
// its page.
type ScreenRenderer interface {
	RenderScreen(w http.ResponseWriter, r *http.Request, status int, state gate.AuthState)
}

type AuthMiddleware struct {
	Registry    *registry.Registry
	Cookie      session.CookieOptions
	SessionTTL  time.Duration
	RenewWindow time.Duration
	Screens     ScreenRenderer
}

func NewAuthMiddleware(reg *registry.Registry, cookie session.CookieOptions, sessionTTL time.Duration, screens ScreenRenderer) *AuthMiddleware {
	return &AuthMiddleware{
		Registry:    reg,
		Cookie:      cookie,
		SessionTTL:  sessionTTL,
		RenewWindow: DefaultRenewWindow,
		Screens:     screens,
	}
}

// Acquire returns the entry of the request's session. With mint set, a
// request without a session cookie gets a new session.
func (a *AuthMiddleware) Acquire(w http.ResponseWriter, r *http.Request, mint bool) (*registry.Entry, error) {
	sessionID, ok := session.ReadCookie(r)
	if !ok {
		if !mint {
			return nil, ErrNoSession
		}

		id, err := session.GenerateID()
		if err != nil {
			return nil, err
		}
		session.SetCookie(w, id, time.Now().Add(a.SessionTTL), a.Cookie)
		sessionID = id
	}

	return a.Registry.Acquire(r.Context(), sessionID)
}

// RequirePage gates a dashboard page. The request either completes a
// sign-in, follows a queued navigation, gets one of the gate's screens or
// reaches next with its AuthState in the context.
func (a *AuthMiddleware) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// 1. Resolve (or start) the session
		entry, err := a.Acquire(w, r, true)
		if err != nil {
			logger.Error("failed to resolve session", map[string]any{"error": err})
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// 2. Authorization response: finish the sign-in on a clean URL
		if to, handled := entry.Client.ProcessLocation(ctx, r.URL); handled {
			http.Redirect(w, r, to, http.StatusFound)
			return
		}

		// 3. Renew tokens close to expiry
		if entry.Client.NeedsRenewal(a.RenewWindow) {
			if _, err := entry.Client.SigninSilent(ctx); err != nil {
				logger.Warn("silent token renewal failed", map[string]any{
					"session_id": entry.Client.SessionID(),
					"error":      err,
				})
			}
		}

		// 4. Let the gate react to the settled snapshot
		state := entry.Gate.Evaluate(ctx, r.URL)

		// 5. Follow a sign-in or sign-out redirect
		if to, ok := entry.Client.TakeNavigation(); ok {
			http.Redirect(w, r, to, http.StatusFound)
			return
		}

		ctx = context.WithValue(ctx, authStateKey, state)
		ctx = context.WithValue(ctx, entryKey, entry)
		r = r.WithContext(ctx)

		if state.Screen != gate.ScreenAuthenticated {
			a.renderScreen(w, r, state)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *AuthMiddleware) renderScreen(w http.ResponseWriter, r *http.Request, state gate.AuthState) {
	status := StatusFor(state.Screen)
	if a.Screens == nil {
		http.Error(w, state.Screen.String(), status)
		return
	}
	a.Screens.RenderScreen(w, r, status, state)
}

// StatusFor is the HTTP status a screen is served with.
func StatusFor(screen gate.Screen) int {
	switch screen {
	case gate.ScreenUnauthenticated:
		return http.StatusUnauthorized
	case gate.ScreenAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusOK
	}
}
