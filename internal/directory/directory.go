// Package directory keeps a record of the administrators who signed in.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/beep-industries/admin/internal/auth"
	"github.com/beep-industries/admin/internal/logger"
)

// Entry is one administrator as last seen by the gate.
type Entry struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	Roles       []string  `json:"roles"`
	SeenCount   int       `json:"seen_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// Directory stores signed-in administrators.
// Record is the only place a user becomes a directory entry.
type Directory interface {
	Record(ctx context.Context, user *auth.User) (id string, err error)
	List(ctx context.Context, limit int) ([]Entry, error)
}

var ErrNilUser = errors.New("directory: user is nil")

const recordTimeout = 5 * time.Second

// NewRecorder returns a userLoaded listener that records every loaded user
// holding role. Failures are logged and never reach the sign-in.
func NewRecorder(dir Directory, mapper *auth.Mapper, role string) func(sessionID string, raw *auth.RawUser) {
	return func(sessionID string, raw *auth.RawUser) {
		user := mapper.MapUser(raw)
		if !user.HasRole(role) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()

		if _, err := dir.Record(ctx, user); err != nil {
			logger.Error("failed to record administrator", map[string]any{
				"session_id": sessionID,
				"subject":    user.ID,
				"error":      err,
			})
		}
	}
}
