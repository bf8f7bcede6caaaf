package session

import (
	"context"
	"errors"
	"time"

	"github.com/beep-industries/admin/internal/auth"
)

// PendingSignin is the half of an authorization-code flow kept between
// the redirect to the provider and the callback.
type PendingSignin struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"code_verifier"`
	ReturnTo     string    `json:"return_to,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is one browser's identity client storage.
type Session struct {
	SessionID string         `json:"session_id"`
	User      *auth.RawUser  `json:"user,omitempty"`    // nil when signed out
	Pending   *PendingSignin `json:"pending,omitempty"` // set while a sign-in redirect is in flight
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"` // absolute expiry time
}

// ErrSessionExists is returned by Create when the id is already taken.
var ErrSessionExists = errors.New("session: already exists")

// Store defines how sessions are stored and retrieved.
// Get returns (nil, nil) when the session does not exist.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
