package oidcclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/provider"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/session"
)

// Navigators name the navigation in flight, mirroring the browser client.
const (
	NavigatorSigninRedirect  = "signinRedirect"
	NavigatorSignoutRedirect = "signoutRedirect"
	NavigatorSigninSilent    = "signinSilent"
)

var (
	ErrStateMismatch  = errors.New("oidcclient: no matching sign-in state")
	ErrMissingCode    = errors.New("oidcclient: authorization response has no code")
	ErrNoRefreshToken = errors.New("oidcclient: no refresh token available")
)

// ErrorResponse is an error the provider returned on the redirect URI.
type ErrorResponse struct {
	Code        string
	Description string
}

func (e *ErrorResponse) Error() string {
	if e.Description == "" {
		return "oidcclient: provider returned " + e.Code
	}
	return fmt.Sprintf("oidcclient: provider returned %s: %s", e.Code, e.Description)
}

// Snapshot is the identity client's state at one point in time.
// Published snapshots are never mutated.
type Snapshot struct {
	IsAuthenticated bool
	IsLoading       bool
	User            *auth.RawUser
	Err             error
	ActiveNavigator string
}

type Option func(*Client)

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionTTL sets the absolute lifetime of sessions created by the client.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// Client is one browser session's OIDC client. It owns the session's
// snapshot and pushes every change to its subscribers.
type Client struct {
	provider  provider.OAuthProvider
	store     session.Store
	sessionID string
	ttl       time.Duration
	now       func() time.Time
	events    *Events

	mu         sync.Mutex
	snap       Snapshot
	returnTo   string
	navigation string
	navigated  bool
	closed     bool
	nextSub    uint64
	subs       map[uint64]func(Snapshot)
}

// New creates a client for sessionID. The snapshot starts loading until
// Load is called.
func New(p provider.OAuthProvider, store session.Store, sessionID string, opts ...Option) *Client {
	c := &Client{
		provider:  p,
		store:     store,
		sessionID: sessionID,
		ttl:       24 * time.Hour,
		now:       time.Now,
		events:    newEvents(),
		snap:      Snapshot{IsLoading: true},
		subs:      make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// Snapshot returns the current state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Subscribe registers fn for every published snapshot. The returned
// function unsubscribes; it is safe to call more than once and after Close.
func (c *Client) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) Events() *Events {
	return c.events
}

func (c *Client) AddUserLoaded(h UserLoadedHandler) ListenerID {
	return c.events.AddUserLoaded(h)
}

func (c *Client) RemoveUserLoaded(id ListenerID) {
	c.events.RemoveUserLoaded(id)
}

// Close drops every subscriber and listener.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[uint64]func(Snapshot))
	c.mu.Unlock()
	c.events.close()
}

// Load restores the signed-in user from the session store. An expired
// user with a refresh token is renewed; otherwise it is dropped.
func (c *Client) Load(ctx context.Context) error {
	sess, err := c.store.Get(ctx, c.sessionID)
	if err != nil {
		err = fmt.Errorf("oidcclient: load session: %w", err)
		c.publish(func(s *Snapshot) {
			s.IsLoading = false
			s.Err = err
		})
		return err
	}

	var user *auth.RawUser
	if sess != nil {
		user = sess.User
	}

	if user != nil && user.Expired(c.now()) {
		renewed, rerr := c.renew(ctx, user)
		if rerr != nil {
			logger.Warn("stored session could not be renewed", map[string]any{
				"error": rerr,
			})
			user = nil
		} else {
			user = renewed
		}
	}

	c.publish(func(s *Snapshot) {
		s.IsLoading = false
		s.User = user
		s.IsAuthenticated = user != nil
	})
	if user != nil {
		c.events.emitUserLoaded(user)
	}
	return nil
}

// SigninRedirect starts an authorization-code flow and queues the
// navigation to the provider. See TakeNavigation.
func (c *Client) SigninRedirect(ctx context.Context) error {
	c.publish(func(s *Snapshot) {
		s.IsLoading = true
		s.ActiveNavigator = NavigatorSigninRedirect
		s.Err = nil
	})

	state, err := generateState()
	if err != nil {
		return c.fail(fmt.Errorf("oidcclient: generate state: %w", err))
	}
	verifier, challenge := generatePKCE()

	c.mu.Lock()
	returnTo := c.returnTo
	c.mu.Unlock()

	err = c.saveSession(ctx, func(s *session.Session) {
		s.Pending = &session.PendingSignin{
			State:        state,
			CodeVerifier: verifier,
			ReturnTo:     returnTo,
			CreatedAt:    c.now(),
		}
	})
	if err != nil {
		return c.fail(err)
	}

	c.queueNavigation(c.provider.AuthCodeURL(state, challenge))
	return nil
}

// SignoutRedirect forgets the signed-in user and queues the navigation to
// the provider's end-session endpoint.
func (c *Client) SignoutRedirect(ctx context.Context) error {
	c.publish(func(s *Snapshot) {
		s.IsLoading = true
		s.ActiveNavigator = NavigatorSignoutRedirect
	})

	var idToken string
	err := c.saveSession(ctx, func(s *session.Session) {
		if s.User != nil {
			idToken = s.User.IDToken
		}
		s.User = nil
		s.Pending = nil
	})
	if err != nil {
		return c.fail(err)
	}

	c.publish(func(s *Snapshot) {
		s.IsAuthenticated = false
		s.User = nil
		s.Err = nil
	})
	c.queueNavigation(c.provider.EndSessionURL(idToken))
	return nil
}

// SigninSilent renews the token set without a navigation.
func (c *Client) SigninSilent(ctx context.Context) (*auth.RawUser, error) {
	c.publish(func(s *Snapshot) {
		s.IsLoading = true
		s.ActiveNavigator = NavigatorSigninSilent
	})

	current := c.Snapshot().User
	if current == nil {
		sess, err := c.store.Get(ctx, c.sessionID)
		if err != nil {
			return nil, c.fail(fmt.Errorf("oidcclient: load session: %w", err))
		}
		if sess != nil {
			current = sess.User
		}
	}
	if current == nil || current.RefreshToken == "" {
		return nil, c.fail(ErrNoRefreshToken)
	}

	user, err := c.renew(ctx, current)
	if err != nil {
		return nil, c.fail(err)
	}

	c.publish(func(s *Snapshot) {
		s.IsLoading = false
		s.ActiveNavigator = ""
		s.User = user
		s.IsAuthenticated = true
		s.Err = nil
	})
	c.events.emitUserLoaded(user)
	return user, nil
}

// HandleCallback completes the flow started by SigninRedirect with the
// parameters the provider appended to the redirect URI. It returns the
// location the sign-in started from.
func (c *Client) HandleCallback(ctx context.Context, params url.Values) (string, error) {
	c.publish(func(s *Snapshot) {
		s.IsLoading = true
	})

	sess, err := c.store.Get(ctx, c.sessionID)
	if err != nil {
		return "", c.fail(fmt.Errorf("oidcclient: load session: %w", err))
	}
	if sess == nil || sess.Pending == nil || sess.Pending.State != params.Get("state") {
		return "", c.fail(ErrStateMismatch)
	}
	pending := *sess.Pending

	// The pending sign-in is single use, whatever the outcome.
	if err := c.saveSession(ctx, func(s *session.Session) { s.Pending = nil }); err != nil {
		return "", c.fail(err)
	}

	if code := params.Get("error"); code != "" {
		return "", c.fail(&ErrorResponse{Code: code, Description: params.Get("error_description")})
	}

	code := params.Get("code")
	if code == "" {
		return "", c.fail(ErrMissingCode)
	}

	user, err := c.provider.ExchangeCode(ctx, code, pending.CodeVerifier)
	if err != nil {
		return "", c.fail(err)
	}

	if err := c.saveSession(ctx, func(s *session.Session) { s.User = user }); err != nil {
		return "", c.fail(err)
	}

	c.publish(func(s *Snapshot) {
		s.IsLoading = false
		s.ActiveNavigator = ""
		s.User = user
		s.IsAuthenticated = true
		s.Err = nil
	})
	c.events.emitUserLoaded(user)

	logger.Info("sign-in completed", map[string]any{
		"provider": c.provider.Name(),
	})
	return pending.ReturnTo, nil
}

// ProcessLocation is called with every page request. When the location is
// an authorization response it completes the sign-in and returns the clean
// location the browser must be sent to. Otherwise it records the location
// and settles any navigation the browser has since followed.
func (c *Client) ProcessLocation(ctx context.Context, u *url.URL) (redirectTo string, handled bool) {
	if params, ok := authParams(u); ok {
		returnTo, err := c.HandleCallback(ctx, params)
		if err != nil || returnTo == "" {
			returnTo = u.Path
		}
		if returnTo == "" {
			returnTo = "/"
		}
		return returnTo, true
	}

	now := c.now()

	c.mu.Lock()
	c.returnTo = u.RequestURI()
	navigated := c.navigated
	c.navigated = false
	// A user with a refresh token stays until silent renewal settles it.
	expired := c.snap.IsAuthenticated && c.snap.User.Expired(now) && c.snap.User.RefreshToken == ""
	c.mu.Unlock()

	if navigated || expired {
		c.publish(func(s *Snapshot) {
			if navigated {
				s.IsLoading = false
				s.ActiveNavigator = ""
			}
			if expired {
				s.IsAuthenticated = false
				s.User = nil
			}
		})
	}
	return "", false
}

// TakeNavigation returns the queued navigation, once.
func (c *Client) TakeNavigation() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.navigation == "" {
		return "", false
	}
	to := c.navigation
	c.navigation = ""
	c.navigated = true
	return to, true
}

// NeedsRenewal reports whether the signed-in user's access token expires
// within window and can be renewed silently.
func (c *Client) NeedsRenewal(window time.Duration) bool {
	snap := c.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil || snap.ActiveNavigator != "" {
		return false
	}
	u := snap.User
	if u.RefreshToken == "" || u.ExpiresAt.IsZero() {
		return false
	}
	return !c.now().Add(window).Before(u.ExpiresAt)
}

// renew runs the refresh grant for user and persists the result.
func (c *Client) renew(ctx context.Context, user *auth.RawUser) (*auth.RawUser, error) {
	if user.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	renewed, err := c.provider.Refresh(ctx, user.RefreshToken)
	if err != nil {
		return nil, err
	}

	// Keycloak may omit the ID token and rotate nothing but the access token.
	if renewed.IDToken == "" {
		renewed.IDToken = user.IDToken
	}
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = user.RefreshToken
	}
	if renewed.Profile == nil || renewed.Profile.Subject == "" {
		renewed.Profile = user.Profile
	}

	if err := c.saveSession(ctx, func(s *session.Session) { s.User = renewed }); err != nil {
		return nil, err
	}
	return renewed, nil
}

func (c *Client) saveSession(ctx context.Context, mutate func(*session.Session)) error {
	sess, err := c.store.Get(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("oidcclient: load session: %w", err)
	}

	if sess == nil {
		now := c.now()
		s := session.Session{
			SessionID: c.sessionID,
			CreatedAt: now,
			ExpiresAt: now.Add(c.ttl),
		}
		mutate(&s)
		if err := c.store.Create(ctx, s); err != nil {
			return fmt.Errorf("oidcclient: create session: %w", err)
		}
		return nil
	}

	mutate(sess)
	if err := c.store.Update(ctx, *sess); err != nil {
		return fmt.Errorf("oidcclient: update session: %w", err)
	}
	return nil
}

func (c *Client) queueNavigation(to string) {
	c.mu.Lock()
	c.navigation = to
	c.mu.Unlock()
}

// fail records err in the snapshot, ends any navigation and returns err.
func (c *Client) fail(err error) error {
	logger.Warn("identity client operation failed", map[string]any{
		"error": err,
	})
	c.publish(func(s *Snapshot) {
		s.IsLoading = false
		s.ActiveNavigator = ""
		s.Err = err
	})
	return err
}

// publish applies mutate and pushes the resulting snapshot to every
// subscriber, in subscription order, after the lock is released.
func (c *Client) publish(mutate func(*Snapshot)) {
	c.mu.Lock()
	mutate(&c.snap)
	snap := c.snap

	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	subs := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.subs[id])
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
