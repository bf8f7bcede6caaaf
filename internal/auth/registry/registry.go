// Package registry keeps one identity client and gate per browser session.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/auth/oidcclient"
	"github.com/beep-industries/admin/internal/auth/provider"
	"github.com/beep-industries/admin/internal/logger"
	"github.com/beep-industries/admin/internal/session"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const defaultIdleTTL = 30 * time.Minute

// Entry is a session's identity client and the gate observing it.
type Entry struct {
	Client *oidcclient.Client
	Gate   *gate.Gate
}

func (e *Entry) close() {
	e.Gate.Close()
	e.Client.Close()
}

// UserLoadedFunc is told about every token set loaded in any session.
type UserLoadedFunc func(sessionID string, user *auth.RawUser)

type Option func(*Registry)

// WithIdleTTL sets how long an unused entry stays in memory.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

func WithClientOptions(opts ...oidcclient.Option) Option {
	return func(r *Registry) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

func WithGateOptions(opts ...gate.Option) Option {
	return func(r *Registry) {
		r.gateOpts = append(r.gateOpts, opts...)
	}
}

// OnUserLoaded registers fn on the userLoaded event of every client.
func OnUserLoaded(fn UserLoadedFunc) Option {
	return func(r *Registry) {
		if fn != nil {
			r.listeners = append(r.listeners, fn)
		}
	}
}

type Registry struct {
	provider   provider.OAuthProvider
	store      session.Store
	mapper     *auth.Mapper
	idleTTL    time.Duration
	clientOpts []oidcclient.Option
	gateOpts   []gate.Option
	listeners  []UserLoadedFunc

	mu    sync.Mutex
	cache *gocache.Cache
	loads singleflight.Group
}

func New(p provider.OAuthProvider, store session.Store, mapper *auth.Mapper, opts ...Option) *Registry {
	r := &Registry{
		provider: p,
		store:    store,
		mapper:   mapper,
		idleTTL:  defaultIdleTTL,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cache = gocache.New(r.idleTTL, time.Minute)
	r.cache.OnEvicted(func(sessionID string, v interface{}) {
		v.(*Entry).close()
		logger.Debug("session entry evicted", map[string]any{"session_id": sessionID})
	})
	return r
}

// Acquire returns the entry for sessionID, creating it and loading the
// stored token set on first use. Every call extends the idle lifetime.
// Concurrent first uses of one session share a single load; other
// sessions are never held up by it.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (*Entry, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("registry: empty session id")
	}

	if e, ok := r.touch(sessionID); ok {
		return e, nil
	}

	v, err, _ := r.loads.Do(sessionID, func() (interface{}, error) {
		if e, ok := r.touch(sessionID); ok {
			return e, nil
		}

		e, err := r.build(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache.Set(sessionID, e, gocache.DefaultExpiration)
		r.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (r *Registry) touch(sessionID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	e := v.(*Entry)
	r.cache.Set(sessionID, e, gocache.DefaultExpiration)
	return e, true
}

func (r *Registry) build(ctx context.Context, sessionID string) (*Entry, error) {
	client := oidcclient.New(r.provider, r.store, sessionID, r.clientOpts...)
	for _, fn := range r.listeners {
		fn := fn
		client.AddUserLoaded(func(u *auth.RawUser) { fn(sessionID, u) })
	}

	// Loaded before the gate exists: restoring a session is not a snapshot
	// change the gate must react to.
	if err := client.Load(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("registry: load session: %w", err)
	}

	return &Entry{
		Client: client,
		Gate:   gate.New(ctx, client, r.mapper, r.gateOpts...),
	}, nil
}

// Peek returns the entry for sessionID without creating it.
func (r *Registry) Peek(sessionID string) (*Entry, bool) {
	v, ok := r.cache.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Forget closes and drops the entry for sessionID.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(sessionID)
}

// Len reports the number of live entries.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes and drops every entry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
