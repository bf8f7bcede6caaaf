package oidcclient

import (
	"sort"
	"sync"

	"github.com/beep-industries/admin/internal/auth"
)

// UserLoadedHandler is called whenever a token set is loaded, including
// silent renewal.
type UserLoadedHandler func(user *auth.RawUser)

// ListenerID identifies a registered handler for removal.
type ListenerID uint64

// Events is the identity client's event hub.
type Events struct {
	mu       sync.Mutex
	next     ListenerID
	closed   bool
	handlers map[ListenerID]UserLoadedHandler
}

func newEvents() *Events {
	return &Events{handlers: make(map[ListenerID]UserLoadedHandler)}
}

// AddUserLoaded registers h. Handlers added after Close are never called.
func (e *Events) AddUserLoaded(h UserLoadedHandler) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	if !e.closed {
		e.handlers[e.next] = h
	}
	return e.next
}

// RemoveUserLoaded removes the handler registered under id.
// Unknown or already removed ids are ignored.
func (e *Events) RemoveUserLoaded(id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, id)
}

func (e *Events) emitUserLoaded(user *auth.RawUser) {
	for _, h := range e.snapshot() {
		h(user)
	}
}

// snapshot returns the handlers in registration order so emission runs
// without the lock held.
func (e *Events) snapshot() []UserLoadedHandler {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]ListenerID, 0, len(e.handlers))
	for id := range e.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]UserLoadedHandler, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.handlers[id])
	}
	return out
}

func (e *Events) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[ListenerID]UserLoadedHandler)
}
