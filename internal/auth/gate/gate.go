// Package gate decides which screen a session gets from its identity
// client's state, and performs the one automatic sign-in an
// unauthenticated session is allowed.
package gate

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/oidcclient"
	"github.com/beep-industries/admin/internal/logger"
	"go.uber.org/zap"
)

// AdminRole is the role required to reach the dashboard.
const AdminRole = "admin"

// maxAutoSignins caps automatic sign-ins per unauthenticated session so
// permanently invalid credentials cannot cause a redirect loop.
const maxAutoSignins = 1

var ErrNoClient = errors.New("gate: no identity client")

// IdentityClient is the OIDC client the gate sits on.
type IdentityClient interface {
	Snapshot() oidcclient.Snapshot
	Subscribe(fn func(oidcclient.Snapshot)) func()
	SigninRedirect(ctx context.Context) error
	SignoutRedirect(ctx context.Context) error
	SigninSilent(ctx context.Context) (*auth.RawUser, error)
	AddUserLoaded(h oidcclient.UserLoadedHandler) oidcclient.ListenerID
	RemoveUserLoaded(id oidcclient.ListenerID)
}

// Observer is notified of screen changes and automatic sign-ins.
type Observer interface {
	ScreenEntered(screen Screen)
	AutoSignin(err error)
}

type Option func(*Gate)

func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

type Gate struct {
	client   IdentityClient
	mapper   *auth.Mapper
	observer Observer
	log      *zap.Logger

	// ctx is used for sign-ins triggered by pushed snapshots.
	ctx context.Context

	mu        sync.Mutex
	attempts  int
	tried     bool
	location  *url.URL
	screen    Screen
	hasScreen bool

	unsubscribe func()
	closeOnce   sync.Once
}

// New creates a gate over client and subscribes to its snapshots until
// Close is called.
func New(ctx context.Context, client IdentityClient, mapper *auth.Mapper, opts ...Option) *Gate {
	g := &Gate{
		client: client,
		mapper: mapper,
		log:    logger.L(),
		ctx:    context.WithoutCancel(ctx),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.mapper == nil {
		g.mapper = auth.NewMapper("")
	}

	g.unsubscribe = client.Subscribe(func(snap oidcclient.Snapshot) {
		g.react(g.ctx, snap)
	})
	return g
}

// Close unsubscribes from the client. It is safe to call more than once.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		g.unsubscribe()
	})
}

// Evaluate records the current location and reacts to the client's
// current snapshot. It returns the state after any automatic sign-in.
func (g *Gate) Evaluate(ctx context.Context, location *url.URL) AuthState {
	g.mu.Lock()
	g.location = location
	g.mu.Unlock()

	return g.react(ctx, g.client.Snapshot())
}

// State returns the view of the current snapshot without reacting to it.
func (g *Gate) State() AuthState {
	g.mu.Lock()
	location := g.location
	g.mu.Unlock()

	return g.view(g.client.Snapshot(), location)
}

// Retry resets the attempt tracking and signs in again, consuming the
// fresh attempt.
func (g *Gate) Retry(ctx context.Context) error {
	g.mu.Lock()
	g.attempts = 1
	g.tried = true
	g.mu.Unlock()

	g.log.Info("retrying sign-in after error")
	return g.client.SigninRedirect(ctx)
}

func (g *Gate) react(ctx context.Context, snap oidcclient.Snapshot) AuthState {
	g.mu.Lock()
	state := g.view(snap, g.location)

	if snap.IsAuthenticated {
		g.attempts = 0
		g.tried = false
	}

	entered := !g.hasScreen || g.screen != state.Screen
	g.screen = state.Screen
	g.hasScreen = true

	autoSignin := state.Screen == ScreenUnauthenticated &&
		!oidcclient.HasAuthParams(g.location) &&
		snap.ActiveNavigator == "" &&
		!g.tried &&
		g.attempts < maxAutoSignins
	if autoSignin {
		// Consumed before the client is called: SigninRedirect pushes a
		// snapshot back into react.
		g.tried = true
		g.attempts++
	}
	g.mu.Unlock()

	if entered {
		g.log.Debug("screen changed", zap.Stringer("screen", state.Screen))
		if g.observer != nil {
			g.observer.ScreenEntered(state.Screen)
		}
	}

	if !autoSignin {
		return state
	}

	g.log.Info("starting automatic sign-in")
	err := g.client.SigninRedirect(ctx)
	if err != nil {
		g.log.Warn("automatic sign-in failed", zap.Error(err))
	}
	if g.observer != nil {
		g.observer.AutoSignin(err)
	}
	return g.State()
}

func (g *Gate) view(snap oidcclient.Snapshot, location *url.URL) AuthState {
	user := g.mapper.MapUser(snap.User)

	state := AuthState{
		IsAuthenticated: snap.IsAuthenticated,
		IsLoading:       snap.IsLoading,
		Err:             snap.Err,
		ActiveNavigator: snap.ActiveNavigator,
		User:            user,
		IsAdmin:         user.HasRole(AdminRole),
		SigningIn:       snap.ActiveNavigator != "" || oidcclient.HasAuthParams(location),
		raw:             snap.User,
		mapper:          g.mapper,
		client:          g.client,
	}
	if snap.User != nil {
		state.AccessToken = snap.User.AccessToken
	}

	switch {
	case snap.Err != nil:
		state.Screen = ScreenError
	case snap.IsLoading:
		state.Screen = ScreenLoading
	case !snap.IsAuthenticated:
		state.Screen = ScreenUnauthenticated
	case !state.IsAdmin:
		state.Screen = ScreenAccessDenied
	default:
		state.Screen = ScreenAuthenticated
	}
	return state
}
