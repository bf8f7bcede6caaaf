package gate

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/oidcclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is a push-based identity client driven by the tests.
type fakeClient struct {
	mu       sync.Mutex
	snap     oidcclient.Snapshot
	nextSub  int
	subs     map[int]func(oidcclient.Snapshot)
	nextID   oidcclient.ListenerID
	handlers map[oidcclient.ListenerID]oidcclient.UserLoadedHandler

	signins    int
	signouts   int
	silentUser *auth.RawUser
	silentErr  error
	signinErr  error
}

func newFakeClient(snap oidcclient.Snapshot) *fakeClient {
	return &fakeClient{
		snap:     snap,
		subs:     make(map[int]func(oidcclient.Snapshot)),
		handlers: make(map[oidcclient.ListenerID]oidcclient.UserLoadedHandler),
	}
}

func (f *fakeClient) Snapshot() oidcclient.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeClient) Subscribe(fn func(oidcclient.Snapshot)) func() {
	f.mu.Lock()
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeClient) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// set publishes snap to every subscriber.
func (f *fakeClient) set(snap oidcclient.Snapshot) {
	f.mu.Lock()
	f.snap = snap
	ids := make([]int, 0, len(f.subs))
	for id := range f.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(oidcclient.Snapshot), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, f.subs[id])
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (f *fakeClient) SigninRedirect(context.Context) error {
	f.mu.Lock()
	f.signins++
	err := f.signinErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.set(oidcclient.Snapshot{IsLoading: true, ActiveNavigator: oidcclient.NavigatorSigninRedirect})
	return nil
}

func (f *fakeClient) SignoutRedirect(context.Context) error {
	f.mu.Lock()
	f.signouts++
	f.mu.Unlock()
	f.set(oidcclient.Snapshot{IsLoading: true, ActiveNavigator: oidcclient.NavigatorSignoutRedirect})
	return nil
}

func (f *fakeClient) SigninSilent(context.Context) (*auth.RawUser, error) {
	return f.silentUser, f.silentErr
}

func (f *fakeClient) AddUserLoaded(h oidcclient.UserLoadedHandler) oidcclient.ListenerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[f.nextID] = h
	return f.nextID
}

func (f *fakeClient) RemoveUserLoaded(id oidcclient.ListenerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, id)
}

func (f *fakeClient) fireUserLoaded(u *auth.RawUser) {
	f.mu.Lock()
	handlers := make([]oidcclient.UserLoadedHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(u)
	}
}

func (f *fakeClient) signinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signins
}

type recordingObserver struct {
	screens     []Screen
	autoSignins int
}

func (r *recordingObserver) ScreenEntered(s Screen) { r.screens = append(r.screens, s) }
func (r *recordingObserver) AutoSignin(error)       { r.autoSignins++ }

func rawUser(token string, roles ...string) *auth.RawUser {
	return &auth.RawUser{
		Profile: &auth.Profile{
			Subject:           "u-1",
			Email:             "ada@example.com",
			PreferredUsername: "Ada Lovelace",
			RealmAccess:       &auth.Access{Roles: roles},
		},
		AccessToken: token,
	}
}

var (
	unauthenticated = oidcclient.Snapshot{}
	loading         = oidcclient.Snapshot{IsLoading: true}
)

func authenticated(roles ...string) oidcclient.Snapshot {
	return oidcclient.Snapshot{IsAuthenticated: true, User: rawUser("tok", roles...)}
}

func newTestGate(t *testing.T, snap oidcclient.Snapshot, opts ...Option) (*Gate, *fakeClient) {
	t.Helper()
	client := newFakeClient(snap)
	g := New(context.Background(), client, auth.NewMapper("admin-dashboard"), opts...)
	t.Cleanup(g.Close)
	return g, client
}

func root(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("/")
	require.NoError(t, err)
	return u
}

func TestAutoSignin_FiresExactlyOnce(t *testing.T) {
	g, client := newTestGate(t, loading)

	client.set(unauthenticated)
	assert.Equal(t, 1, client.signinCount())

	client.set(unauthenticated)
	assert.Equal(t, 1, client.signinCount())

	g.Evaluate(context.Background(), root(t))
	assert.Equal(t, 1, client.signinCount())
}

func TestAutoSignin_FromEvaluate(t *testing.T) {
	g, client := newTestGate(t, unauthenticated)

	state := g.Evaluate(context.Background(), root(t))

	assert.Equal(t, 1, client.signinCount())
	assert.Equal(t, ScreenLoading, state.Screen)
	assert.True(t, state.SigningIn)
	assert.Equal(t, oidcclient.NavigatorSigninRedirect, state.ActiveNavigator)
}

func TestAutoSignin_ReArmsAfterAuthentication(t *testing.T) {
	_, client := newTestGate(t, loading)

	client.set(unauthenticated)
	require.Equal(t, 1, client.signinCount())

	client.set(authenticated(AdminRole))
	client.set(unauthenticated)
	assert.Equal(t, 2, client.signinCount())

	client.set(unauthenticated)
	assert.Equal(t, 2, client.signinCount())
}

func TestAutoSignin_SkippedWithAuthParams(t *testing.T) {
	g, client := newTestGate(t, loading)

	for _, raw := range []string{"/?code=abc&state=xyz", "/?error=access_denied&state=xyz", "/#code=abc&state=xyz"} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		g.Evaluate(context.Background(), u)
	}
	client.set(unauthenticated)

	assert.Zero(t, client.signinCount())
}

func TestAutoSignin_SkippedWithActiveNavigator(t *testing.T) {
	_, client := newTestGate(t, loading)

	client.set(oidcclient.Snapshot{ActiveNavigator: oidcclient.NavigatorSignoutRedirect})
	assert.Zero(t, client.signinCount())

	client.set(unauthenticated)
	assert.Equal(t, 1, client.signinCount())
}

func TestAutoSignin_FailureStillConsumesAttempt(t *testing.T) {
	client := newFakeClient(loading)
	client.signinErr = errors.New("store down")
	obs := &recordingObserver{}
	g := New(context.Background(), client, auth.NewMapper(""), WithObserver(obs))
	defer g.Close()

	client.set(unauthenticated)
	client.set(unauthenticated)

	assert.Equal(t, 1, client.signinCount())
	assert.Equal(t, 1, obs.autoSignins)
}

func TestAccessDenied_NeverSignsIn(t *testing.T) {
	g, client := newTestGate(t, loading)

	client.set(authenticated("viewer"))
	state := g.Evaluate(context.Background(), root(t))

	assert.Equal(t, ScreenAccessDenied, state.Screen)
	assert.False(t, state.IsAdmin)
	assert.False(t, state.HasRole(AdminRole))
	assert.Zero(t, client.signinCount())
}

func TestScreenPrecedence(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		snap oidcclient.Snapshot
		want Screen
	}{
		{name: "error wins over loading", snap: oidcclient.Snapshot{Err: boom, IsLoading: true}, want: ScreenError},
		{name: "error wins over authenticated", snap: oidcclient.Snapshot{Err: boom, IsAuthenticated: true, User: rawUser("t", AdminRole)}, want: ScreenError},
		{name: "loading", snap: oidcclient.Snapshot{IsLoading: true, IsAuthenticated: true, User: rawUser("t", AdminRole)}, want: ScreenLoading},
		{name: "unauthenticated", snap: oidcclient.Snapshot{ActiveNavigator: "x"}, want: ScreenUnauthenticated},
		{name: "access denied", snap: authenticated("viewer"), want: ScreenAccessDenied},
		{name: "authenticated", snap: authenticated(AdminRole), want: ScreenAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGate(t, tt.snap)
			assert.Equal(t, tt.want, g.State().Screen)
		})
	}
}

func TestAuthenticatedState(t *testing.T) {
	g, _ := newTestGate(t, authenticated(AdminRole, "moderator"))

	state := g.Evaluate(context.Background(), root(t))

	require.NotNil(t, state.User)
	assert.Equal(t, ScreenAuthenticated, state.Screen)
	assert.True(t, state.IsAdmin)
	assert.Equal(t, "tok", state.AccessToken)
	assert.Equal(t, "u-1", state.User.ID)
	assert.Equal(t, []string{"admin", "moderator"}, state.User.Roles)
	assert.True(t, state.HasRole("moderator"))
	assert.False(t, state.SigningIn)
}

func TestHasRole_UsesCapturedSnapshot(t *testing.T) {
	g, client := newTestGate(t, authenticated(AdminRole))
	state := g.State()

	client.set(authenticated("viewer"))

	assert.True(t, state.HasRole(AdminRole))
	assert.True(t, state.IsAdmin)
	assert.False(t, g.State().HasRole(AdminRole))
}

func TestRetry_ResetsAndSignsInOnce(t *testing.T) {
	g, client := newTestGate(t, loading)

	client.set(unauthenticated)
	require.Equal(t, 1, client.signinCount())

	client.set(oidcclient.Snapshot{Err: errors.New("exchange failed")})
	assert.Equal(t, ScreenError, g.State().Screen)

	require.NoError(t, g.Retry(context.Background()))
	assert.Equal(t, 2, client.signinCount())

	client.set(unauthenticated)
	assert.Equal(t, 2, client.signinCount())
}

func TestLoginLogout_Delegate(t *testing.T) {
	g, client := newTestGate(t, authenticated(AdminRole))
	state := g.State()

	require.NoError(t, state.Logout(context.Background()))
	assert.Equal(t, 1, client.signouts)

	require.NoError(t, state.Login(context.Background()))
	assert.Equal(t, 1, client.signinCount())
}

func TestZeroStateOperations(t *testing.T) {
	var state AuthState

	assert.ErrorIs(t, state.Login(context.Background()), ErrNoClient)
	assert.ErrorIs(t, state.Logout(context.Background()), ErrNoClient)
	_, err := state.SigninSilent(context.Background())
	assert.ErrorIs(t, err, ErrNoClient)
	assert.False(t, state.HasRole(AdminRole))
	assert.NotPanics(t, func() { state.SubscribeToTokenRefresh(func(string) {})() })
}

func TestSigninSilent(t *testing.T) {
	g, client := newTestGate(t, loading)
	client.set(unauthenticated)
	require.Equal(t, 1, client.signinCount())

	client.silentUser = rawUser("tok2", AdminRole)
	token, err := g.State().SigninSilent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", token)

	client.silentUser = nil
	token, err = g.State().SigninSilent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)

	client.silentErr = errors.New("invalid_grant")
	_, err = g.State().SigninSilent(context.Background())
	assert.EqualError(t, err, "invalid_grant")

	client.set(unauthenticated)
	assert.Equal(t, 1, client.signinCount(), "silent sign-in leaves attempt tracking alone")
}

func TestSubscribeToTokenRefresh(t *testing.T) {
	g, client := newTestGate(t, authenticated(AdminRole))

	var got []string
	unsubscribe := g.State().SubscribeToTokenRefresh(func(tok string) { got = append(got, tok) })

	client.fireUserLoaded(rawUser("tok1"))
	assert.Equal(t, []string{"tok1"}, got)

	client.fireUserLoaded(rawUser(""))
	client.fireUserLoaded(nil)
	assert.Equal(t, []string{"tok1"}, got)

	unsubscribe()
	unsubscribe()
	client.fireUserLoaded(rawUser("tok2"))
	assert.Equal(t, []string{"tok1"}, got)
}

func TestSubscribeToTokenRefresh_RemovesOnlyItsHandler(t *testing.T) {
	g, client := newTestGate(t, authenticated(AdminRole))

	var a, b int
	unsubscribeA := g.State().SubscribeToTokenRefresh(func(string) { a++ })
	g.State().SubscribeToTokenRefresh(func(string) { b++ })

	unsubscribeA()
	client.fireUserLoaded(rawUser("tok"))

	assert.Zero(t, a)
	assert.Equal(t, 1, b)
}

func TestClose_Unsubscribes(t *testing.T) {
	g, client := newTestGate(t, loading)
	require.Equal(t, 1, client.subscribers())

	g.Close()
	g.Close()
	assert.Zero(t, client.subscribers())

	client.set(unauthenticated)
	assert.Zero(t, client.signinCount())
}

func TestObserver_ScreenTransitions(t *testing.T) {
	obs := &recordingObserver{}
	_, client := newTestGate(t, loading, WithObserver(obs))

	client.set(unauthenticated)
	client.set(authenticated(AdminRole))
	client.set(authenticated(AdminRole))

	assert.Equal(t, []Screen{ScreenUnauthenticated, ScreenLoading, ScreenAuthenticated}, obs.screens)
	assert.Equal(t, 1, obs.autoSignins)
}

func TestScreenString(t *testing.T) {
	assert.Equal(t, "access_denied", ScreenAccessDenied.String())
	assert.Equal(t, "screen(42)", Screen(42).String())

	text, err := ScreenError.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "error", string(text))
}
